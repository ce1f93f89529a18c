package gateway

import "github.com/BaSui01/agentflow/gwerr"

// FallbackConfig is the static, config-loaded fallback table (spec §6.3):
// one map per error class plus the "general" catch-all, each keyed by the
// original logical model.
type FallbackConfig struct {
	General       map[string][]string
	ContextWindow map[string][]string
	ContentPolicy map[string][]string
	RateLimit     map[string][]string
}

func (c *FallbackConfig) byClass(class gwerr.FallbackClass) map[string][]string {
	switch class {
	case gwerr.ClassContextWindow:
		return c.ContextWindow
	case gwerr.ClassContentPolicy:
		return c.ContentPolicy
	case gwerr.ClassRateLimit:
		return c.RateLimit
	default:
		return c.General
	}
}

// FallbackController is C11: classify typed errors and resolve a candidate
// model list for re-dispatch.
type FallbackController struct {
	cfg    FallbackConfig
	hopCap int
}

func NewFallbackController(cfg FallbackConfig, hopCap int) *FallbackController {
	if hopCap <= 0 {
		hopCap = 3
	}
	return &FallbackController{cfg: cfg, hopCap: hopCap}
}

func (f *FallbackController) HopCap() int { return f.hopCap }

// Plan implements spec §4.7's lookup order: (1) the error-class-specific
// list for the original model, (2) the General list for the original
// model, (3) none (propagate).
func (f *FallbackController) Plan(originalModel string, class gwerr.FallbackClass) []string {
	if class == "" {
		return nil
	}
	if list, ok := f.cfg.byClass(class)[originalModel]; ok && len(list) > 0 {
		return list
	}
	if class != gwerr.ClassGeneral {
		if list, ok := f.cfg.General[originalModel]; ok && len(list) > 0 {
			return list
		}
	}
	return nil
}

// Classify delegates to gwerr.Classify; returned ok=false means propagate,
// no fallback attempt (spec §4.7: non-retryable errors propagate verbatim).
func (f *FallbackController) Classify(err *gwerr.Error) (gwerr.FallbackClass, bool) {
	return gwerr.Classify(err)
}
