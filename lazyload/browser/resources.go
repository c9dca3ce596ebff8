package browser

import (
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking sets up request interception to block the given
// resource types. Images are never blocked: the scheduler exists to load
// them.
func applyResourceBlocking(page *rod.Page, types []string, logger *slog.Logger) error {
	blockSet := blockedTypes(types)
	if len(blockSet) == 0 {
		return nil
	}

	router := page.HijackRequests()
	err := router.Add("*", "", func(ctx *rod.Hijack) {
		if blockSet[strings.ToLower(string(ctx.Request.Type()))] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return err
	}
	logger.Debug("browser: blocking resources", "types", types)

	go router.Run()
	return nil
}

// blockedTypes maps config names to CDP resource types.
func blockedTypes(types []string) map[string]bool {
	out := make(map[string]bool, len(types))
	for _, t := range types {
		switch strings.ToLower(t) {
		case "fonts", "font":
			out["font"] = true
		case "media":
			out["media"] = true
		case "stylesheets", "stylesheet":
			out["stylesheet"] = true
		case "images", "image":
			// never
		default:
			out[strings.ToLower(t)] = true
		}
	}
	return out
}
