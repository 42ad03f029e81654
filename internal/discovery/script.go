// internal/discovery/script.go
package discovery

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsString renders a Go string as a JavaScript string literal.
func jsString(s string) string {
	lit, err := json.MarshalToString(s)
	if err != nil {
		return `""`
	}
	return lit
}

func jsStringSlice(ss []string) string {
	if len(ss) == 0 {
		return `[]`
	}
	lit, err := json.MarshalToString(ss)
	if err != nil {
		return `[]`
	}
	return lit
}

// pathHelpersJS defines xpathOf, cssOf and identityOf, the generators
// behind every descriptor's xpath and css_selector fields. The locator
// later feeds these exact strings back through document.evaluate and
// querySelectorAll, so both sides have to agree on the dialect: xpaths
// anchor on @id when one exists, css paths stop at the nearest id and
// qualify repeated sibling tags with :nth-of-type.
const pathHelpersJS = `const xpathOf = (el) => {
		if (el.id !== "") { return '//*[@id="' + el.id + '"]'; }
		if (el === el.ownerDocument.body) { return "/html/body"; }
		if (!el.parentNode) { return ""; }
		let ix = 0;
		const siblings = el.parentNode.childNodes;
		for (let i = 0; i < siblings.length; i++) {
			const sib = siblings[i];
			if (sib === el) {
				return xpathOf(el.parentNode) + "/" + el.tagName.toLowerCase() + "[" + (ix + 1) + "]";
			}
			if (sib.nodeType === 1 && sib.tagName === el.tagName) { ix++; }
		}
		return "";
	};
	const cssOf = (el) => {
		const path = [];
		while (el && el.nodeType === 1) {
			let sel = el.nodeName.toLowerCase();
			if (el.id) {
				path.unshift(sel + "#" + el.id);
				break;
			}
			let sib = el;
			let nth = 1;
			while ((sib = sib.previousElementSibling)) {
				if (sib.nodeName.toLowerCase() === sel) { nth++; }
			}
			if (nth !== 1) { sel += ":nth-of-type(" + nth + ")"; }
			path.unshift(sel);
			el = el.parentNode;
		}
		return path.join(" > ");
	};
	const identityOf = (el) => xpathOf(el) + "\x1f" + cssOf(el) + "\x1f" + (el.id || "");`

// buildScanExpr walks every element in the document, computes its
// interactivity signals and captures a descriptor for anything carrying
// at least one. Same-origin frames are descended up to frameDepth
// levels; cross-origin frames throw on contentDocument access and are
// skipped. Strictness policy stays on the Go side so one scan serves
// every tier.
func buildScanExpr(frameDepth int) string {
	return fmt.Sprintf(`(() => {
	%s
	const roles = %s;
	const skipTags = { html: true, head: true, script: true, style: true, meta: true, link: true, noscript: true, iframe: true, frame: true };
	const seen = new Set();
	const out = [];
	const consider = (el, win) => {
		const tag = el.tagName.toLowerCase();
		if (skipTags[tag]) { return; }
		const rect = el.getBoundingClientRect();
		if (rect.width <= 0 || rect.height <= 0) { return; }
		const style = win.getComputedStyle(el);
		if (style.display === "none" || style.visibility === "hidden") { return; }
		if (el.disabled === true) { return; }
		const role = (el.getAttribute("role") || "").toLowerCase();
		const signals = {
			native: tag === "a" || tag === "button" || tag === "input",
			aria: roles.indexOf(role) !== -1,
			testid: el.hasAttribute("data-testid") || el.hasAttribute("data-cy"),
			cursor: style.cursor === "pointer" && tag !== "img",
			handler: !!(el.onclick || el.onmousedown || el.onmouseup || el.getAttribute("onclick") ||
				el.hasAttribute("data-action") || el.hasAttribute("data-click") ||
				el.hasAttribute("data-href") || el.hasAttribute("data-url")),
		};
		if (!signals.native && !signals.aria && !signals.testid && !signals.cursor && !signals.handler) { return; }
		const key = identityOf(el);
		if (seen.has(key)) { return; }
		seen.add(key);
		out.push({
			tag_name: tag,
			text: (el.innerText || "").trim().slice(0, 100),
			class_names: el.getAttribute("class") || "",
			id: el.id || "",
			href: el.getAttribute("href") || "",
			onclick: el.getAttribute("onclick") || "",
			xpath: xpathOf(el),
			css_selector: cssOf(el),
			signals: signals,
		});
	};
	const walk = (doc, win, depth) => {
		for (const el of doc.querySelectorAll("*")) {
			try { consider(el, win); } catch (e) {}
		}
		if (depth <= 0) { return; }
		for (const frame of doc.querySelectorAll("iframe, frame")) {
			let child = null;
			try { child = frame.contentDocument; } catch (e) { child = null; }
			if (child && frame.contentWindow) { walk(child, frame.contentWindow, depth - 1); }
		}
	};
	walk(document, window, %d);
	return out;
})()`, pathHelpersJS, jsStringSlice(interactiveRoles), frameDepth)
}

// frameWalkJS defines walkDocs(doc, win, depth, fn), the same descent
// the scan performs. Agitation passes share it so menus and accordions
// inside same-origin frames get opened too, not just rescanned.
const frameWalkJS = `const walkDocs = (doc, win, depth, fn) => {
		fn(doc, win);
		if (depth <= 0) { return; }
		for (const frame of doc.querySelectorAll("iframe, frame")) {
			let child = null;
			try { child = frame.contentDocument; } catch (e) { child = null; }
			if (child && frame.contentWindow) { walkDocs(child, frame.contentWindow, depth - 1, fn); }
		}
	};`

// buildHoverExpr dispatches mouseover and mouseenter at hover-menu
// triggers in the document and every same-origin frame, returning how
// many fired.
func buildHoverExpr(frameDepth int) string {
	return fmt.Sprintf(`(() => {
	%s
	const sels = %s;
	let fired = 0;
	walkDocs(document, window, %d, (doc, win) => {
		for (const sel of sels) {
			let found = [];
			try { found = doc.querySelectorAll(sel); } catch (e) { continue; }
			for (const el of found) {
				try {
					el.dispatchEvent(new MouseEvent("mouseover", { bubbles: true, cancelable: true, view: win }));
					el.dispatchEvent(new MouseEvent("mouseenter", { bubbles: false, view: win }));
					fired++;
				} catch (e) {}
			}
		}
	});
	return fired;
})()`, frameWalkJS, jsStringSlice(hoverSelectors), frameDepth)
}

// buildExpanderExpr clicks visible expanders not yet visited and not yet
// stamped, returning their identity keys. The stamp keeps a round from
// re-clicking within the page; the visited list covers identity across
// rounds on the Go side.
func buildExpanderExpr(visited []string, frameDepth int) string {
	return fmt.Sprintf(`(() => {
	%s
	%s
	const sels = %s;
	const visited = new Set(%s);
	const out = { clicked: 0, keys: [] };
	walkDocs(document, window, %d, (doc, win) => {
		for (const sel of sels) {
			let found = [];
			try { found = doc.querySelectorAll(sel); } catch (e) { continue; }
			for (const el of found) {
				try {
					if (el.getAttribute(%s) === "1") { continue; }
					const rect = el.getBoundingClientRect();
					if (rect.width <= 0 || rect.height <= 0) { continue; }
					const style = win.getComputedStyle(el);
					if (style.display === "none" || style.visibility === "hidden") { continue; }
					if (el.disabled === true) { continue; }
					const key = identityOf(el);
					if (visited.has(key)) { continue; }
					el.setAttribute(%s, "1");
					el.click();
					out.clicked++;
					out.keys.push(key);
				} catch (e) {}
			}
		}
	});
	return out;
})()`, pathHelpersJS, frameWalkJS, jsStringSlice(expanderSelectors), jsStringSlice(visited), frameDepth, jsString(expandedMarker), jsString(expandedMarker))
}
