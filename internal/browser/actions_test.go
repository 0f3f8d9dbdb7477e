package browser

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbscrape/internal/auth"
)

// scriptDriver answers Eval with the value returned by respond.
type scriptDriver struct {
	scripts []string
	respond func(script string) interface{}
}

func (d *scriptDriver) Navigate(context.Context, string) error          { return nil }
func (d *scriptDriver) CurrentURL(context.Context) (string, error)      { return "", nil }
func (d *scriptDriver) HTML(context.Context) (string, error)            { return "", nil }
func (d *scriptDriver) SetCookies(context.Context, []auth.Cookie) error { return nil }
func (d *scriptDriver) Cookies(context.Context) ([]auth.Cookie, error)  { return nil, nil }
func (d *scriptDriver) Back(context.Context) error                      { return nil }
func (d *scriptDriver) Close() error                                    { return nil }

func (d *scriptDriver) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (d *scriptDriver) Eval(_ context.Context, script string, out interface{}) error {
	d.scripts = append(d.scripts, script)
	var v interface{}
	if d.respond != nil {
		v = d.respond(script)
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func TestTagElements_EmbedsArguments(t *testing.T) {
	d := &scriptDriver{respond: func(string) interface{} { return 7 }}

	n, err := TagElements(context.Background(), d, []string{`div[role="feed"] > div`}, "data-fbs-idx")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.Len(t, d.scripts, 1)
	assert.Contains(t, d.scripts[0], `["div[role=\"feed\"] > div"]`)
	assert.Contains(t, d.scripts[0], `"data-fbs-idx"`)
}

func TestClickByText(t *testing.T) {
	d := &scriptDriver{respond: func(string) interface{} { return true }}

	clicked, err := ClickByText(context.Background(), d, `[data-fbs-idx="3"]`, []string{`div[role="button"]`}, []string{"comment"})
	require.NoError(t, err)
	assert.True(t, clicked)
	assert.Contains(t, d.scripts[0], `"[data-fbs-idx=\"3\"]"`)
	assert.Contains(t, d.scripts[0], `["comment"]`)
}

func TestCloseModal_Escalates(t *testing.T) {
	checks := 0
	d := &scriptDriver{respond: func(script string) interface{} {
		if strings.Contains(script, "sels.some") {
			checks++
			return checks < 2
		}
		return nil
	}}

	err := CloseModal(context.Background(), d, []string{`div[role="dialog"]`}, []string{`div[aria-label="Close"]`}, 0)
	require.NoError(t, err)

	// Escape, check (still open), close button, check (closed).
	require.Len(t, d.scripts, 4)
	assert.Contains(t, d.scripts[0], "Escape")
	assert.Contains(t, d.scripts[2], `div[aria-label=\"Close\"]`)
}

func TestCloseModal_RemovesAsLastResort(t *testing.T) {
	d := &scriptDriver{respond: func(script string) interface{} {
		if strings.Contains(script, "sels.some") {
			return true
		}
		return nil
	}}

	require.NoError(t, CloseModal(context.Background(), d, []string{`div[role="dialog"]`}, nil, 0))
	last := d.scripts[len(d.scripts)-1]
	assert.Contains(t, last, "m.remove()")
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestNew_UnknownEngine(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	_, err := New(context.Background(), Options{Engine: "lynx"}, logger)
	assert.ErrorContains(t, err, "unknown browser engine")
}

func TestOptions_Defaults(t *testing.T) {
	var o Options
	o.setDefaults()
	assert.Equal(t, DefaultUserAgent, o.UserAgent)
	assert.Equal(t, 1920, o.WindowWidth)
	assert.Equal(t, 30*time.Second, o.PageLoadTimeout)
	assert.Equal(t, "firefox", o.SeleniumBrowser)
	assert.True(t, o.limiter().Allow())

	o.NavigationsPerMinute = 1
	lim := o.limiter()
	assert.True(t, lim.Allow())
	assert.False(t, lim.Allow())
}
