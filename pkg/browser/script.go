package browser

import (
	"encoding/json"
	"fmt"
)

// Action scripts report back one of these instead of throwing, so that a missing or
// hidden element maps onto a driver error kind rather than a JS exception.
const (
	resultOK      = "ok"
	resultMissing = "missing"
	resultHidden  = "hidden"
	resultNoValue = "novalue"
)

const visibleFn = `function(el){var s=window.getComputedStyle(el);return s.display!=='none'&&s.visibility!=='hidden'&&el.getClientRects().length>0;}`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// lookupJS returns an expression evaluating to the first element matched by loc, or null.
func lookupJS(loc Locator) string {
	q := jsString(loc.Value)
	switch loc.By {
	case ByID:
		return "document.getElementById(" + q + ")"
	case ByXPath:
		return "document.evaluate(" + q + ",document,null,XPathResult.FIRST_ORDERED_NODE_TYPE,null).singleNodeValue"
	default:
		return "document.querySelector(" + q + ")"
	}
}

// lookupAllJS returns an expression evaluating to an array of every element matched by loc.
func lookupAllJS(loc Locator) string {
	q := jsString(loc.Value)
	switch loc.By {
	case ByID:
		return "[document.getElementById(" + q + ")].filter(Boolean)"
	case ByXPath:
		return "(function(){var r=document.evaluate(" + q + ",document,null,XPathResult.ORDERED_NODE_SNAPSHOT_TYPE,null);var a=[];for(var i=0;i<r.snapshotLength;i++){a.push(r.snapshotItem(i));}return a;})()"
	default:
		return "Array.from(document.querySelectorAll(" + q + "))"
	}
}

// conditionJS builds a predicate expression for WaitFor.
func conditionJS(loc Locator, cond Condition) string {
	if cond == ConditionURLChanged {
		return "location.href!==" + jsString(loc.Value)
	}
	var check string
	switch cond {
	case ConditionVisible:
		check = "return (" + visibleFn + ")(el);"
	case ConditionClickable:
		check = "return (" + visibleFn + ")(el)&&!el.disabled;"
	default:
		check = "return true;"
	}
	return fmt.Sprintf("(function(){var el=%s;if(!el){return false;}%s})()", lookupJS(loc), check)
}

// actionJS wraps body, which sees the located element as el, with the missing/hidden checks.
func actionJS(loc Locator, requireVisible bool, body string) string {
	guard := ""
	if requireVisible {
		guard = fmt.Sprintf("if(!(%s)(el)||el.disabled){return %s;}", visibleFn, jsString(resultHidden))
	}
	return fmt.Sprintf("(function(){var el=%s;if(!el){return %s;}%s%s return %s;})()",
		lookupJS(loc), jsString(resultMissing), guard, body, jsString(resultOK))
}

// clickJS defers the click so a click that submits a form does not tear down the
// execution context the evaluation is still running in.
func clickJS(loc Locator) string {
	return actionJS(loc, true, "setTimeout(function(){el.click();},0);")
}

func selectJS(loc Locator, value string) string {
	v := jsString(value)
	body := fmt.Sprintf("el.value=%s;if(el.value!==%s){return %s;}el.dispatchEvent(new Event('change',{bubbles:true}));",
		v, v, jsString(resultNoValue))
	return actionJS(loc, false, body)
}

func typeJS(loc Locator, text string) string {
	body := fmt.Sprintf("el.focus();el.value=%s;el.dispatchEvent(new Event('input',{bubbles:true}));el.dispatchEvent(new Event('change',{bubbles:true}));",
		jsString(text))
	return actionJS(loc, true, body)
}

func checkAllJS(loc Locator) string {
	return fmt.Sprintf("(function(){var n=0;%s.forEach(function(c){if(!c.checked){c.click();n++;}});return n;})()", lookupAllJS(loc))
}

func scriptJS(script string) string {
	return "(function(){" + script + "\nreturn true;})()"
}
