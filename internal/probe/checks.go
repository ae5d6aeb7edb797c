package probe

import (
	"fmt"

	"github.com/shortontech/featurefp/internal/report"
)

// Check is a named boolean test. Script is the page-side source of the test,
// when it has one; Test decides the outcome against an environment.
type Check struct {
	Name   string
	Script string
	Test   func(env Environment) (bool, error)
}

// Script builds a check whose outcome is the truthiness of js evaluated in
// the environment.
func Script(name, js string) Check {
	return Check{
		Name:   name,
		Script: js,
		Test: func(env Environment) (bool, error) {
			v, err := env.Eval(js)
			if err != nil {
				return false, err
			}
			return Truthy(v), nil
		},
	}
}

// FaultHook is told about every check that errored or panicked.
type FaultHook func(check string, err error)

// RunChecks evaluates every check in order. A check that errors or panics
// reports "0" and does not affect the others.
func RunChecks(env Environment, checks []Check, onFault FaultHook) []report.Pair {
	out := make([]report.Pair, 0, len(checks))
	for _, c := range checks {
		ok, err := runCheck(env, c)
		if err != nil && onFault != nil {
			onFault(c.Name, err)
		}
		val := "0"
		if ok && err == nil {
			val = "1"
		}
		out = append(out, report.Pair{Name: c.Name, Value: val})
	}
	return out
}

func runCheck(env Environment, c Check) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("check %s panicked: %v", c.Name, r)
		}
	}()
	if c.Test == nil {
		return false, fmt.Errorf("check %s has no test", c.Name)
	}
	return c.Test(env)
}

// DefaultChecks is the deployed browser, automation and language-level check
// set, in report order.
func DefaultChecks() []Check {
	return []Check{
		Script("chrome", `!!window.chrome`),
		Script("opera", `!!window.opera`),
		Script("netscape", `!!window.netscape`),
		Script("safari", `!!window.safari`),
		Script("old_ie", `!!window.attachEvent && !window.addEventListener`),

		Script("ie_like", `/*@cc_on!@*/false || !!document.documentMode`),
		Script("safari_like", `!!window.safari`),
		Script("mozilla_like", `!!window.Components || typeof InstallTrigger !== 'undefined'`),
		Script("chrome_like", `!((!(/*@cc_on!@*/false || !!document.documentMode) && !!window.StyleMedia) || top.msCredentials) && (!!window.chrome || /Chrome/.test(navigator.userAgent) || /Google/i.test(navigator.vendor))`),
		Script("opera_like", `(!!window.opr && !!opr.addons) || (!!window.opera && window.opera.toString() === "[object Opera]")`),
		Script("edge_like", `(!(/*@cc_on!@*/false || !!document.documentMode) && !!window.StyleMedia) || top.msCredentials`),

		Script("webdriver", `!!navigator.webdriver || !!HTMLDocument.webdriver || !!window._WEBDRIVER_ELEM_CACHE`),
		Script("automation", `!!window.domAutomationController || !!window.domAutomation`),
		Script("phantom", `!!window.callPhantom || !!window._phantom || !!window._phantomas`),
		Script("nightmare", `!!window.__nightmare`),
		Script("awesomium", `!!window.awesomium`),

		Script("es5", `Object.defineProperty`),
		Script("es6", `eval("setTimeout(() => {null}, 1);")`),
		Script("es7", `Array.prototype.includes !== undefined`),
		Script("es8", `eval("(async function() {});")`),
		Script("es9", `eval("let {rest_test, ...a_test} = Object; 1")`),
		Script("es10", `"".matchAll`),
	}
}
