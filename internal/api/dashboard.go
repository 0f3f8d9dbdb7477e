package api

import "net/http"

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>fbscrape</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f0f2f5; margin: 0; }
main { max-width: 1100px; margin: 0 auto; padding: 20px; }
.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 16px; margin-bottom: 20px; }
.card, section { background: white; padding: 16px; border-radius: 8px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
.num { font-size: 1.8em; font-weight: bold; color: #1877f2; }
.post { border-bottom: 1px solid #eee; padding: 12px 0; }
.author { font-weight: bold; color: #1877f2; }
.meta { color: #65676b; font-size: 0.9em; }
.error { color: #c33; }
</style>
</head>
<body>
<main>
<h1>fbscrape</h1>
<div class="cards" id="stats">Loading statistics...</div>
<p><a href="/api/export/csv">Export CSV</a></p>
<section>
<h2>Most liked posts</h2>
<div id="posts">Loading posts...</div>
</section>
</main>
<script>
function esc(s) {
  const d = document.createElement('div');
  d.textContent = s || '';
  return d.innerHTML;
}
async function loadStats() {
  const el = document.getElementById('stats');
  try {
    const res = await (await fetch('/api/stats')).json();
    if (!res.success) throw new Error(res.error);
    const s = res.data;
    const cards = [
      [s.total_posts, 'Posts'],
      [s.total_comments, 'Comments'],
      [Math.round(s.avg_likes), 'Average likes'],
      [s.groups, 'Groups'],
      [s.recent_posts, 'Posts in 24h'],
    ];
    el.innerHTML = cards.map(c => '<div class="card"><div class="num">' + c[0] + '</div>' + c[1] + '</div>').join('');
  } catch (e) {
    el.innerHTML = '<div class="error">Failed to load statistics: ' + esc(e.message) + '</div>';
  }
}
async function loadPosts() {
  const el = document.getElementById('posts');
  try {
    const res = await (await fetch('/api/posts?page_size=10')).json();
    if (!res.success) throw new Error(res.error);
    const posts = res.data.posts || [];
    if (posts.length === 0) {
      el.innerHTML = '<p>No posts stored yet. Run the scraper first.</p>';
      return;
    }
    el.innerHTML = posts.map(p =>
      '<div class="post"><div class="author">' + esc(p.author.name) + '</div>' +
      '<div>' + esc(p.content.substring(0, 240)) + '</div>' +
      '<div class="meta">' + p.engagement.likes + ' likes, ' + p.engagement.comments + ' comments, ' +
      p.engagement.shares + ' shares</div></div>'
    ).join('');
  } catch (e) {
    el.innerHTML = '<div class="error">Failed to load posts: ' + esc(e.message) + '</div>';
  }
}
loadStats();
loadPosts();
</script>
</body>
</html>
`
