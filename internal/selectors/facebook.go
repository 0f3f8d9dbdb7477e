package selectors

// Facebook markup changes without notice. Every chain below is ordered from
// the most specific attribute-based hook to the broadest structural guess,
// and the obfuscated class names are kept last because they rotate first.
//
// Chains used by the browser side (Posts, CommentButton, Modal, LoadMore,
// CloseButtons, LoggedIn, Feed) must stay valid for document.querySelectorAll,
// so they cannot use goquery-only pseudo classes such as :contains.

// Profile groups the selector chains for one flavour of the site.
type Profile struct {
	Name string

	Feed     Chain
	LoggedIn Chain
	Posts    Chain

	PostAuthor    Chain
	AuthorAvatar  Chain
	Verified      Chain
	PostContent   Chain
	PostTime      Chain
	PostLink      Chain
	Likes         Chain
	CommentsCount Chain
	Shares        Chain
	Reactions     Chain
	Images        Chain
	Video         Chain
	Poll          Chain
	Event         Chain

	CommentButton      Chain
	CommentButtonWords []string
	Modal              Chain
	CloseButtons       Chain
	LoadMore           Chain
	LoadMoreWords      []string
	SeeMoreWords       []string

	Comments        Chain
	CommentAuthor   Chain
	CommentText     Chain
	CommentTime     Chain
	CommentLikes    Chain
	CommentReplyBtn Chain
	Replies         Chain
	Pinned          Chain
	Edited          Chain
	CommentReaction Chain
}

// Desktop is the www.facebook.com profile.
func Desktop() Profile {
	return Profile{
		Name: "desktop",
		Feed: Chain{`div[role="feed"]`, `div[data-pagelet*="GroupFeed"]`, `div[role="main"]`},
		LoggedIn: Chain{
			`div[role="banner"]`,
			`div[data-pagelet="FeedUnit"]`,
			`a[aria-label="Facebook"]`,
			`div[aria-label="Home"]`,
		},
		Posts: Chain{
			`div[role="feed"] div[aria-posinset]`,
			`div[data-pagelet^="FeedUnit"]`,
			`div[role="feed"] > div`,
			`div[role="article"]:not([aria-label*="omment"])`,
			`div.x1yztbdb:not([aria-hidden="true"])`,
		},

		PostAuthor: Chain{
			`[data-ad-rendering-role="profile_name"] a`,
			`h2 a[role="link"]`,
			`h3 a[role="link"]`,
			`h2 strong a`,
			`h3 a`,
			`strong a`,
			`span.xt0psk2 a`,
			`span.x193iq5w a`,
		},
		AuthorAvatar: Chain{
			`svg image`,
			`a[role="link"] img[src*="profile"]`,
			`img[data-imgperflogname="profileCoverPhoto"]`,
			`a[role="link"] img`,
		},
		Verified: Chain{
			`svg[aria-label*="Verified"]`,
			`[data-testid="profile-verification-badge"]`,
			`img[alt*="erified"]`,
		},
		PostContent: Chain{
			`div[data-ad-preview="message"]`,
			`div[data-ad-comet-preview="message"]`,
			`[data-ad-rendering-role="story_message"]`,
			`div[data-testid="post_message"]`,
			`div[class*="userContent"]`,
			`div.userContent`,
			`div[dir="auto"][style*="text-align"]`,
		},
		PostTime: Chain{
			`abbr[data-utime]`,
			`a[href*="/posts/"] span[title]`,
			`a[aria-label*="minute"]`,
			`a[aria-label*="hour"]`,
			`a[aria-label*="day"]`,
			`abbr[title]`,
			`span[title]`,
			`a[href*="/posts/"][role="link"]`,
		},
		PostLink: Chain{
			`a[href*="/posts/"]`,
			`a[href*="/permalink/"]`,
			`a[href*="story_fbid"]`,
			`a[href*="/photo.php"]`,
			`a[href*="/photos/"]`,
			`a[href*="/videos/"]`,
			`a[role="link"][aria-label*="ago"]`,
			`div[data-testid="story-subtitle"] a`,
		},
		Likes: Chain{
			`span[aria-label*="All reactions"]`,
			`span[data-testid="UFI2ReactionsCount/root"]`,
			`span[aria-label*="reaction"]`,
			`div[aria-label*="reaction"]`,
			`div._81hb span`,
		},
		CommentsCount: Chain{
			`span:contains(" comment")`,
			`div[role="button"]:contains(" comment")`,
			`a[href*="comment"]:contains(" comment")`,
		},
		Shares: Chain{
			`span[aria-label*="share"]`,
			`span:contains(" share")`,
			`div[aria-label*="share"]`,
			`span[data-testid*="share"]`,
		},
		Reactions: Chain{
			`div[aria-label*="reaction"]`,
			`span[aria-label*="reaction"]`,
			`span[data-testid="UFI2ReactionsCount/root"]`,
			`div._1g06 span`,
		},
		Images: Chain{
			`img[src*="scontent"]`,
			`img[data-src*="scontent"]`,
			`img[src*="fbcdn"]`,
			`div[data-testid="photo"] img`,
			`div[role="img"] img`,
		},
		Video: Chain{`video`, `div[aria-label*="ideo"]`, `a[href*="/videos/"]`, `a[href*="/watch/"]`},
		Poll:  Chain{`div[aria-label*="poll"]`, `div[data-testid*="poll"]`},
		Event: Chain{`div[aria-label*="event"]`, `a[href*="/events/"]`},

		CommentButton: Chain{
			`div[aria-label="Leave a comment"]`,
			`div[role="button"][aria-label*="omment"]`,
			`div[role="button"]`,
			`span[role="button"]`,
			`a[href*="/posts/"]`,
			`a[href*="story_fbid"]`,
		},
		CommentButtonWords: []string{"comment", "комментар"},
		Modal: Chain{
			`div[role="dialog"]`,
			`div[aria-modal="true"]`,
			`div[data-visualcompletion="ignore-dynamic-aria"][role="dialog"]`,
		},
		CloseButtons: Chain{
			`div[aria-label="Close"]`,
			`div[role="button"][aria-label="Close"]`,
			`div[aria-label="Закрыть"]`,
			`[data-testid="modal-close-button"]`,
		},
		LoadMore: Chain{
			`div[role="button"]`,
			`a[role="button"]`,
			`span[role="button"]`,
			`[data-sigil="m-more-comments"]`,
		},
		LoadMoreWords: []string{
			"view more comments", "view previous comments", "show more comments",
			"more comments", "previous comments", "показать больше комментариев",
			"view more replies", "replies",
		},
		SeeMoreWords: []string{"see more", "show more", "ещё", "еще"},

		Comments: Chain{
			`ul[role="list"] > li div[role="article"]`,
			`div[role="article"][aria-label*="omment"]`,
			`div[data-testid="UFI2Comment/root_depth_0"]`,
			`div[role="article"][tabindex="-1"]`,
			`div.x1y332i5`,
		},
		CommentAuthor: Chain{
			`a[role="link"] span.x3nfvp2`,
			`h3 a span`,
			`strong a span`,
			`a[role="link"] strong`,
			`a[href*="/user/"] strong`,
			`a[href*="/profile.php"] strong`,
			`h3 a`,
			`strong a`,
			`h3 strong`,
			`a[role="link"] span`,
		},
		CommentText: Chain{
			`div[data-testid="comment-content"] span[dir="auto"]`,
			`div[data-testid="UFI2Comment/body"] span[dir="auto"]`,
			`div[data-ad-comet-preview="message"]`,
			`div.x1iorvi4.x1pi3gq7 span[dir="auto"]`,
			`div.xdj266r.x11i5rnm.xat24cr span[dir="auto"]`,
		},
		CommentTime: Chain{
			`a[href*="comment_id"] abbr`,
			`a[role="link"] abbr`,
			`abbr[data-utime]`,
			`time`,
			`a[href*="comment_id"]`,
			`span[title]`,
		},
		CommentLikes: Chain{
			`span[aria-label*="like"]`,
			`span[aria-label*="reaction"]`,
			`div[aria-label*="like"]`,
			`div[aria-label*="reaction"]`,
		},
		CommentReplyBtn: Chain{
			`div[role="button"]:contains("repl")`,
			`span:contains("repl")`,
			`div[aria-label*="repl"]`,
			`button:contains("repl")`,
		},
		Replies: Chain{
			`div[role="article"][aria-label*="Reply"]`,
			`div[role="article"][aria-label*="reply"]`,
			`ul[role="list"] div[role="article"]`,
			`div[data-testid="UFI2Comment/root_depth_1"]`,
		},
		Pinned: Chain{
			`svg[aria-label*="Pinned"]`,
			`div[aria-label*="Pinned"]`,
			`span:contains("Pinned")`,
		},
		Edited: Chain{
			`span:contains("Edited")`,
			`div[aria-label*="Edited"]`,
			`span:contains("edited")`,
		},
		CommentReaction: Chain{
			`div[aria-label*="reaction"]`,
			`span[data-testid*="reaction"]`,
		},
	}
}

// Mobile is the m.facebook.com / mbasic profile used for permalink pages.
func Mobile() Profile {
	p := Desktop()
	p.Name = "mobile"
	p.Feed = Chain{`#screen-root`, `div#m_group_stories_container`, `section`, `body`}
	p.LoggedIn = Chain{`#screen-root`, `a[href*="/logout"]`, `div[data-sigil="MTopBlueBarHeader"]`}
	p.Posts = Chain{
		`div[data-ft*="top_level_post_id"]`,
		`article`,
		`div[data-sigil="story-div"]`,
		`div.story_body_container`,
	}
	p.PostAuthor = Chain{
		`[data-ft*="top_level_post_id"] h3 a`,
		`div[data-ft] h3 a`,
		`h3 a`,
		`strong a`,
		`span.f6.a`,
		`h3 span`,
		`strong span`,
	}
	p.PostContent = Chain{
		`[data-ft*="top_level_post_id"] div[data-sigil="m-story-dom-content"]`,
		`div[data-sigil="m-story-dom-content"]`,
		`div.story_body_container > div`,
		`[data-testid="post_message"]`,
		`div[data-ft] p`,
	}
	p.PostLink = Chain{
		`a[href*="/story.php"]`,
		`a[href*="story_fbid"]`,
		`a[href*="/posts/"]`,
		`a[href*="/permalink/"]`,
	}
	p.CommentButton = Chain{
		`div[aria-label="Leave a comment"]`,
		`div[aria-label*="omment"]`,
		`[data-sigil="comment-inline-composer"]`,
		`div[role="button"][aria-label*="Comment"]`,
		`a[href*="/story.php"]`,
	}
	p.Comments = p.Comments.Prepend(
		`[data-sigil="comment"]`,
		`div[data-ft*="comment"]`,
	)
	p.CommentAuthor = p.CommentAuthor.Prepend(`h3 a`, `strong a`, `span a`)
	p.CommentText = p.CommentText.Prepend(`[data-sigil="comment-body"]`)
	return p
}

// Discovered holds selectors found on a live page. Any field may be empty.
type Discovered struct {
	Posts         Chain `json:"posts,omitempty"`
	CommentButton Chain `json:"comment_button,omitempty"`
	Modal         Chain `json:"modal,omitempty"`
	Comments      Chain `json:"comments,omitempty"`
	Replies       Chain `json:"replies,omitempty"`
	LoadMore      Chain `json:"load_more,omitempty"`
}

// Prepend returns a copy of p with the discovered selectors tried before
// the static ones.
func (p Profile) Prepend(d Discovered) Profile {
	p.Posts = p.Posts.Prepend(d.Posts...)
	p.CommentButton = p.CommentButton.Prepend(d.CommentButton...)
	p.Modal = p.Modal.Prepend(d.Modal...)
	p.Comments = p.Comments.Prepend(d.Comments...)
	p.Replies = p.Replies.Prepend(d.Replies...)
	p.LoadMore = p.LoadMore.Prepend(d.LoadMore...)
	return p
}
