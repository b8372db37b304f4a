package surface

import (
	"encoding/json"
	"fmt"
)

// hookScript installs the page event buffer and the click capture used
// during item selection. Install is idempotent; navigation wipes window
// state, so it is re-run before every overlay render. Captured clicks
// record the element-child index path from the document element down, the
// same coordinates the Go side resolves against its HTML snapshot.
const hookScript = `() => {
	const w = window;
	if (w.__pointfeedHooked) return true;
	w.__pointfeedHooked = true;
	w.__pointfeedEvents = [];

	document.addEventListener('click', (ev) => {
		try {
			if (!w.__pointfeedSelecting) return;
			const overlay = document.getElementById('__pointfeed_overlay');
			if (overlay && overlay.contains(ev.target)) return;
			ev.preventDefault();
			ev.stopPropagation();

			const path = [];
			let el = ev.target;
			while (el && el !== document.documentElement) {
				const parent = el.parentElement;
				if (!parent) break;
				path.unshift(Array.prototype.indexOf.call(parent.children, el));
				el = parent;
			}
			w.__pointfeedEvents.push({ name: 'pick', path });
		} catch (e) {}
	}, true);

	return true;
}`

// drainEventsScript returns buffered events and clears the buffer.
const drainEventsScript = `() => {
	const buf = Array.isArray(window.__pointfeedEvents) ? window.__pointfeedEvents : [];
	window.__pointfeedEvents = [];
	return buf;
}`

const snapshotScript = `() => document.documentElement.outerHTML`

const locationScript = `() => window.location.href`

// scrollScript scrolls the named container to its bottom, or the window
// when target is empty or matches nothing.
func scrollScript(target string) (string, error) {
	sel, err := json.Marshal(target)
	if err != nil {
		return "", fmt.Errorf("encode scroll target: %w", err)
	}

	return fmt.Sprintf(`() => {
	const sel = %s;
	if (sel) {
		const el = document.querySelector(sel);
		if (el) {
			el.scrollTop = el.scrollHeight;
			return true;
		}
	}
	const doc = document.scrollingElement || document.documentElement;
	window.scrollTo(0, doc ? doc.scrollHeight : 1e9);
	return true;
}`, sel), nil
}

// overlayScript renders the control overlay for one state. The previous
// overlay element is removed first, so every render starts from scratch.
func overlayScript(state OverlayState) (string, error) {
	encoded, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode overlay state: %w", err)
	}

	return fmt.Sprintf(`() => {
	const state = %s;
	const doc = document;
	window.__pointfeedSelecting = state.step === 'select';

	const old = doc.getElementById('__pointfeed_overlay');
	if (old) old.remove();

	const root = doc.createElement('div');
	root.id = '__pointfeed_overlay';
	root.style.cssText = 'position:fixed;top:16px;right:16px;z-index:2147483647;width:320px;' +
		'background:#15181d;color:#e8e8e8;font:13px/1.5 sans-serif;border-radius:8px;' +
		'padding:14px;box-shadow:0 4px 24px rgba(0,0,0,.45)';

	const push = (ev) => {
		(window.__pointfeedEvents = window.__pointfeedEvents || []).push(ev);
	};
	const line = (text) => {
		const p = doc.createElement('div');
		p.textContent = text;
		p.style.margin = '0 0 8px';
		root.appendChild(p);
		return p;
	};
	const button = (label, onClick) => {
		const b = doc.createElement('button');
		b.textContent = label;
		b.style.cssText = 'margin:4px 6px 0 0;padding:4px 10px;cursor:pointer';
		b.addEventListener('click', (e) => { e.stopPropagation(); onClick(); });
		root.appendChild(b);
		return b;
	};
	const input = (placeholder, value) => {
		const i = doc.createElement('input');
		i.placeholder = placeholder;
		i.value = value || '';
		i.style.cssText = 'width:100%%;box-sizing:border-box;margin:0 0 8px;padding:4px;color:#111';
		i.addEventListener('click', (e) => e.stopPropagation());
		root.appendChild(i);
		return i;
	};

	if (state.notice) {
		line(state.notice).style.color = '#f0b429';
	}

	if (state.step === 'login') {
		line('Log in if the site asks you to, then continue.');
		button('Continue', () => push({ name: 'login-done' }));
	} else if (state.step === 'navigate') {
		line('Open the page that lists the items to follow.');
		const url = input('https://...', state.targetUrl);
		button('Open page', () => push({ name: 'navigate-to', url: url.value.trim() }));
		if (state.targetUrl) {
			button('Select items here', () => push({ name: 'start-selector' }));
		}
	} else if (state.step === 'navigating') {
		line('Loading ' + (state.targetUrl || '') + ' ...');
	} else if (state.step === 'select') {
		line('Click one item in the list you want to follow.');
		if (state.preview && state.preview.length) {
			line('Matched ' + state.preview.length + ' items:');
			const list = doc.createElement('ul');
			list.style.cssText = 'max-height:140px;overflow:auto;margin:0 0 8px;padding-left:18px';
			state.preview.slice(0, 8).forEach((cap) => {
				const li = doc.createElement('li');
				li.textContent = cap;
				list.appendChild(li);
			});
			root.appendChild(list);
			const display = input('Feed name', '');
			button('These are right', () => push({ name: 'confirm-items', display: display.value.trim() }));
		}
	} else if (state.step === 'scroll-config') {
		line('How should refreshes load more items?');
		const target = input('Scroll container selector (blank = page)', '');
		const count = input('Scroll passes', '3');
		button('Finish', () => push({
			name: 'finish-scroll',
			target: target.value.trim(),
			count: parseInt(count.value, 10) || 0,
		}));
	} else if (state.step === 'done') {
		line('All set. This window can be closed.');
	}

	if (state.step !== 'done') {
		button('Cancel', () => push({ name: 'cancel' }));
	}

	doc.documentElement.appendChild(root);
	return true;
}`, encoded), nil
}
