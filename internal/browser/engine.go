package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"

	"github.com/shortontech/featurefp/internal/report"
)

// Engine loads the third-party fingerprinting library into a page. The page
// either ships the library itself or ScriptURL names where to fetch it.
type Engine struct {
	ScriptURL string
	Global    string // defaults to FingerprintJS
}

// Agent is a loaded engine bound to one tab.
type Agent struct {
	global string
}

func (e Engine) global() string {
	if e.Global == "" {
		return "FingerprintJS"
	}
	return e.Global
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// loadScript resolves once the engine global exists, injecting ScriptURL when
// the page does not already define it.
func (e Engine) loadScript() (string, error) {
	global, err := json.Marshal(e.global())
	if err != nil {
		return "", err
	}
	src, err := json.Marshal(e.ScriptURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`new Promise(function (resolve, reject) {
  var name = %s, src = %s;
  if (typeof window[name] !== "undefined") { resolve(true); return; }
  if (!src) { reject(new Error(name + " is not defined")); return; }
  var s = document.createElement("script");
  s.src = src;
  s.onload = function () { resolve(typeof window[name] !== "undefined"); };
  s.onerror = function () { reject(new Error("failed to load " + src)); };
  document.head.appendChild(s);
})`, global, src), nil
}

// Load makes the engine available in tabCtx.
func (e Engine) Load(tabCtx context.Context) (*Agent, error) {
	script, err := e.loadScript()
	if err != nil {
		return nil, err
	}
	var ok bool
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(script, &ok, awaitPromise)); err != nil {
		return nil, fmt.Errorf("browser: engine load: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("browser: engine global %s missing after load", e.global())
	}
	return &Agent{global: e.global()}, nil
}

func (a *Agent) getScript() string {
	return fmt.Sprintf(`window[%q].load().then(function (fp) { return fp.get(); }).then(function (r) {
  return {visitorId: r.visitorId, components: r.components};
})`, a.global)
}

// Get runs load().get() and returns the visitor id and components.
func (a *Agent) Get(tabCtx context.Context) (report.EngineResult, error) {
	var raw []byte
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(a.getScript(), &raw, awaitPromise)); err != nil {
		return report.EngineResult{}, fmt.Errorf("browser: engine get: %w", err)
	}
	return decodeEngineResult(raw)
}

func decodeEngineResult(raw []byte) (report.EngineResult, error) {
	if !gjson.ValidBytes(raw) {
		return report.EngineResult{}, fmt.Errorf("browser: engine result is not json")
	}
	res := gjson.ParseBytes(raw)
	id := res.Get("visitorId")
	if id.Type != gjson.String || id.Str == "" {
		return report.EngineResult{}, fmt.Errorf("browser: engine result has no visitorId")
	}
	out := report.EngineResult{VisitorID: id.Str}
	if comps := res.Get("components"); comps.IsObject() {
		out.Components = json.RawMessage(comps.Raw)
	}
	return out, nil
}
