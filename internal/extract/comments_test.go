package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbscrape/internal/selectors"
)

const modalHTML = `<html><body>
<div role="dialog">
  <ul role="list">
    <li>
      <div role="article" aria-label="Comment by Carol White">
        <a role="link" href="/carol.white?__cft__=x"><span class="x3nfvp2">Carol White</span></a>
        <div><div dir="auto">Great post, I like it a lot!</div></div>
        <a href="https://www.facebook.com/groups/1/posts/2/?comment_id=111">5h</a>
        <span aria-label="3 reactions; see who reacted">3</span>
        <span>Edited</span>
        <div role="button">View 2 replies</div>
      </div>
      <div>
        <ul role="list">
          <li>
            <div role="article" aria-label="Reply by Dan Brown">
              <a role="link" href="/dan.brown"><span class="x3nfvp2">Dan Brown</span></a>
              <div dir="auto">Thanks Carol</div>
              <a href="https://www.facebook.com/groups/1/posts/2/?comment_id=111&amp;reply_comment_id=222">2h</a>
            </div>
          </li>
          <li>
            <div role="article" aria-label="Reply by Eve Green">
              <a role="link" href="/eve"><span class="x3nfvp2">Eve Green</span></a>
              <div dir="auto">Agreed!</div>
            </div>
          </li>
        </ul>
      </div>
    </li>
    <li>
      <div role="article" aria-label="Comment by Frank Ocean">
        <a role="link" href="/frank"><strong>Frank Ocean</strong></a>
        <svg aria-label="Pinned comment"></svg>
        <div dir="auto">Pinned announcement for the group.</div>
        <a href="https://www.facebook.com/groups/1/posts/2/?comment_id=333">1d</a>
      </div>
    </li>
    <li>
      <div role="article" aria-label="Comment by Ghost">
        <a role="link" href="/ghost"><span class="x3nfvp2">Ghost</span></a>
      </div>
    </li>
  </ul>
</div>
<div role="article" aria-label="Comment by Outsider">
  <a role="link" href="/out"><span class="x3nfvp2">Outsider</span></a>
  <div dir="auto">I am not inside the dialog at all.</div>
</div>
</body></html>`

func TestParser_ParseComments_Modal(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	p := newTestParser(selectors.Desktop())

	comments := p.ParseComments(loadDoc(t, modalHTML).Selection, now)
	require.Len(t, comments, 2)

	carol := comments[0]
	assert.Equal(t, "c_111", carol.ID)
	assert.Equal(t, "Carol White", carol.Author.Name)
	assert.Equal(t, "https://www.facebook.com/carol.white", carol.Author.URL)
	assert.Equal(t, "Great post, I like it a lot!", carol.Text)
	assert.Equal(t, "5h", carol.PostedTime)
	assert.Equal(t, 3, carol.Likes)
	assert.True(t, carol.IsEdited)
	assert.False(t, carol.IsPinned)
	assert.Equal(t, 2, carol.RepliesCount)
	assert.Equal(t, now, carol.ScrapedAt)

	require.Len(t, carol.Replies, 2)
	assert.Equal(t, "c_222", carol.Replies[0].ID)
	assert.Equal(t, "Dan Brown", carol.Replies[0].Author.Name)
	assert.Equal(t, "Thanks Carol", carol.Replies[0].Text)
	assert.Equal(t, "2h", carol.Replies[0].PostedTime)
	assert.Equal(t, "Eve Green", carol.Replies[1].Author.Name)
	assert.Equal(t, "Agreed!", carol.Replies[1].Text)
	assert.True(t, strings.HasPrefix(carol.Replies[1].ID, "c_"))
	assert.Empty(t, carol.Replies[1].Replies)

	frank := comments[1]
	assert.Equal(t, "c_333", frank.ID)
	assert.Equal(t, "Frank Ocean", frank.Author.Name)
	assert.Equal(t, "Pinned announcement for the group.", frank.Text)
	assert.True(t, frank.IsPinned)
	assert.False(t, frank.IsEdited)
	assert.Empty(t, frank.Replies)
	assert.Zero(t, frank.RepliesCount)
}

func TestParser_ParseComments_MaxReplies(t *testing.T) {
	logger := newTestParser(selectors.Desktop()).logger
	p := NewParser(selectors.Desktop(), logger, WithMaxReplies(1))

	comments := p.ParseComments(loadDoc(t, modalHTML).Selection, time.Now())
	require.NotEmpty(t, comments)
	require.Len(t, comments[0].Replies, 1)
	assert.Equal(t, "Dan Brown", comments[0].Replies[0].Author.Name)
	assert.Equal(t, 2, comments[0].RepliesCount)
}

func TestParser_ParseComments_Mobile(t *testing.T) {
	html := `<div id="screen-root">
	  <div data-sigil="comment">
	    <h3><a href="/zoe?refid=1">Zoe</a></h3>
	    <div data-sigil="comment-body">Mobile comment body</div>
	  </div>
	  <div data-sigil="comment">
	    <h3><a href="/yan">Yan</a></h3>
	    <div data-sigil="comment-body">Second one</div>
	  </div>
	</div>`
	p := newTestParser(selectors.Mobile())

	comments := p.ParseComments(loadDoc(t, html).Selection, time.Now())
	require.Len(t, comments, 2)
	assert.Equal(t, "Zoe", comments[0].Author.Name)
	assert.Equal(t, "https://www.facebook.com/zoe", comments[0].Author.URL)
	assert.Equal(t, "Mobile comment body", comments[0].Text)
	assert.Equal(t, "Yan", comments[1].Author.Name)
	assert.Equal(t, "Second one", comments[1].Text)
}

func TestParser_ParseComments_None(t *testing.T) {
	p := newTestParser(selectors.Desktop())
	assert.Empty(t, p.ParseComments(loadDoc(t, `<div role="dialog"><p>No comments yet</p></div>`).Selection, time.Now()))
}

func TestIsMetaLine(t *testing.T) {
	for _, line := range []string{"Like", "Reply", "5h", "2 w", "Just now", "12", "3 days ago", " · "} {
		assert.True(t, isMetaLine(line), line)
	}
	for _, line := range []string{"Great idea", "Like this a lot", "5 hours of work"} {
		assert.False(t, isMetaLine(line), line)
	}
}
