package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Page actions shared by both engines. Every script is a single expression
// so it can be evaluated by chromedp as is and by WebDriver after wrapping.

func jsArg(v interface{}) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSpace(b.String())
}

// ScrollHeight returns document.body.scrollHeight.
func ScrollHeight(ctx context.Context, d Driver) (int, error) {
	var h int
	err := d.Eval(ctx, `document.body ? document.body.scrollHeight : 0`, &h)
	return h, err
}

// ScrollToBottom scrolls the window to the end of the document and reports
// the document height before the scroll. Callers compare it against a later
// ScrollHeight to see whether new content arrived.
func ScrollToBottom(ctx context.Context, d Driver) (int, error) {
	var before int
	err := d.Eval(ctx, `(() => {
		const h = document.body ? document.body.scrollHeight : 0;
		window.scrollTo(0, h);
		return h;
	})()`, &before)
	if err != nil {
		return 0, fmt.Errorf("failed to scroll: %w", err)
	}
	return before, nil
}

func ScrollOffset(ctx context.Context, d Driver) (int, error) {
	var y float64
	err := d.Eval(ctx, `window.pageYOffset || document.documentElement.scrollTop || 0`, &y)
	return int(y), err
}

func ScrollTo(ctx context.Context, d Driver, offset int) error {
	return d.Eval(ctx, fmt.Sprintf(`window.scrollTo(0, %d)`, offset), nil)
}

// TagElements sets attr to a running index on every element matched by
// any of selectors that does not carry it yet, and returns how many
// elements carry it in total.
func TagElements(ctx context.Context, d Driver, selectors []string, attr string) (int, error) {
	script := fmt.Sprintf(`((sels, attr) => {
		if (window.__fbsNext === undefined) window.__fbsNext = 0;
		for (const sel of sels) {
			let found;
			try { found = document.querySelectorAll(sel); } catch (e) { continue; }
			for (const el of found) {
				if (!el.hasAttribute(attr)) el.setAttribute(attr, String(window.__fbsNext++));
			}
		}
		return document.querySelectorAll('[' + attr + ']').length;
	})(%s, %s)`, jsArg(selectors), jsArg(attr))

	var n int
	if err := d.Eval(ctx, script, &n); err != nil {
		return 0, fmt.Errorf("failed to tag elements: %w", err)
	}
	return n, nil
}

// ClickByText clicks the first visible element inside scope (a CSS
// selector, or the whole document when empty) that matches one of
// selectors and whose text or aria-label contains one of words. It reports
// whether anything was clicked.
func ClickByText(ctx context.Context, d Driver, scope string, selectors, words []string) (bool, error) {
	script := fmt.Sprintf(`((scopeSel, sels, words) => {
		const roots = scopeSel ? Array.from(document.querySelectorAll(scopeSel)) : [document];
		const visible = el => {
			const r = el.getBoundingClientRect();
			return r.width > 0 && r.height > 0;
		};
		for (const root of roots) {
			for (const sel of sels) {
				let found;
				try { found = root.querySelectorAll(sel); } catch (e) { continue; }
				for (const el of found) {
					const label = ((el.innerText || '') + ' ' + (el.getAttribute('aria-label') || '')).toLowerCase();
					if (words.length && !words.some(w => label.includes(w))) continue;
					if (!visible(el)) continue;
					el.scrollIntoView({block: 'center'});
					el.click();
					return true;
				}
			}
		}
		return false;
	})(%s, %s, %s)`, jsArg(scope), jsArg(selectors), jsArg(words))

	var clicked bool
	if err := d.Eval(ctx, script, &clicked); err != nil {
		return false, fmt.Errorf("failed to click: %w", err)
	}
	return clicked, nil
}

// Exists reports whether any of selectors matches in the document.
func Exists(ctx context.Context, d Driver, selectors []string) (bool, error) {
	script := fmt.Sprintf(`((sels) => sels.some(sel => {
		try { return document.querySelector(sel) !== null; } catch (e) { return false; }
	}))(%s)`, jsArg(selectors))
	var ok bool
	err := d.Eval(ctx, script, &ok)
	return ok, err
}

// CloseModal closes an open dialog, escalating from the Escape key to the
// close buttons, a click outside the dialog and finally removing the dialog
// from the DOM.
func CloseModal(ctx context.Context, d Driver, modal, closeButtons []string, settle time.Duration) error {
	steps := []string{
		`document.dispatchEvent(new KeyboardEvent('keydown', {key: 'Escape', code: 'Escape', keyCode: 27, which: 27, bubbles: true}))`,
		fmt.Sprintf(`((sels) => {
			for (const sel of sels || []) {
				let el;
				try { el = document.querySelector(sel); } catch (e) { continue; }
				if (el) { el.click(); return true; }
			}
			return false;
		})(%s)`, jsArg(closeButtons)),
		`(() => {
			const el = document.elementFromPoint(50, 50);
			if (el) el.click();
			return true;
		})()`,
	}

	for _, step := range steps {
		if err := d.Eval(ctx, step, nil); err != nil {
			return fmt.Errorf("failed to close modal: %w", err)
		}
		if err := Sleep(ctx, settle); err != nil {
			return err
		}
		open, err := Exists(ctx, d, modal)
		if err != nil {
			return err
		}
		if !open {
			return nil
		}
	}

	remove := fmt.Sprintf(`((sels) => {
		for (const sel of sels || []) {
			try { document.querySelectorAll(sel).forEach(m => m.remove()); } catch (e) {}
		}
		return true;
	})(%s)`, jsArg(modal))
	return d.Eval(ctx, remove, nil)
}

// ScrollModal scrolls the scrollable area of the last open dialog to its
// end. It reports false when no dialog is open.
func ScrollModal(ctx context.Context, d Driver, modal []string) (bool, error) {
	script := fmt.Sprintf(`((sels) => {
		let dialog = null;
		for (const sel of sels) {
			let found;
			try { found = document.querySelectorAll(sel); } catch (e) { continue; }
			if (found.length) { dialog = found[found.length - 1]; break; }
		}
		if (!dialog) return false;
		let target = dialog;
		for (const el of dialog.querySelectorAll('div')) {
			if (el.scrollHeight > el.clientHeight + 10) {
				const style = getComputedStyle(el);
				if (style.overflowY === 'auto' || style.overflowY === 'scroll') { target = el; break; }
			}
		}
		target.scrollTo(0, target.scrollHeight);
		return true;
	})(%s)`, jsArg(modal))

	var ok bool
	if err := d.Eval(ctx, script, &ok); err != nil {
		return false, fmt.Errorf("failed to scroll modal: %w", err)
	}
	return ok, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
