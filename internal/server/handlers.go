package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"

	"github.com/ironsheep/imageview-bridge/internal/cachekey"
	"github.com/ironsheep/imageview-bridge/internal/engine"
	"github.com/ironsheep/imageview-bridge/internal/imaging"
	"github.com/ironsheep/imageview-bridge/internal/lifecycle"
	"github.com/ironsheep/imageview-bridge/internal/request"
)

// === View Handlers ===

type viewCreateParams struct {
	ViewID string `json:"viewId"`
	Render bool   `json:"render"`
}

type viewUpdateParams struct {
	ViewID string          `json:"viewId"`
	Props  json.RawMessage `json:"props"`
}

type viewDropParams struct {
	ViewID string `json:"viewId"`
}

// configErrorData is attached to the error response of a rejected
// view/update.
type configErrorData struct {
	Kind   string `json:"kind"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail"`
}

// viewEvent is the params object of a view/event notification.
type viewEvent struct {
	ViewID  string      `json:"viewId"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// viewImage is the params object of a view/image notification.
type viewImage struct {
	ViewID string `json:"viewId"`
	Kind   string `json:"kind"`
	*imaging.EncodedImage
}

func (s *Server) handleViewCreate(req *Request) *Response {
	var p viewCreateParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}
	if p.ViewID == "" {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", "viewId is required")
	}

	var target engine.Target
	if p.Render {
		target = &viewTarget{s: s, viewID: p.ViewID}
	}
	s.coord.Bind(p.ViewID, lifecycle.SinkFunc(s.emitEvent), target)

	return s.result(req.ID, map[string]interface{}{"viewId": p.ViewID})
}

func (s *Server) handleViewUpdate(req *Request) *Response {
	var p viewUpdateParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}
	b, ok := s.coord.Lookup(p.ViewID)
	if !ok {
		return s.errorResponse(req.ID, codeInvalidParams, "Unknown view", p.ViewID)
	}

	fragment := request.Fragment{}
	if len(p.Props) > 0 {
		f, err := request.ParseFragment(p.Props)
		if err != nil {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid props", err.Error())
		}
		fragment = f
	}

	if err := s.coord.Reconfigure(b, fragment); err != nil {
		var ce *request.ConfigError
		if errors.As(err, &ce) {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid props", configErrorData{
				Kind:   ce.Kind.String(),
				Field:  ce.Field,
				Detail: ce.Error(),
			})
		}
		if errors.Is(err, lifecycle.ErrReleased) {
			return s.errorResponse(req.ID, codeInvalidParams, "Unknown view", p.ViewID)
		}
		return s.errorResponse(req.ID, codeEngineFailure, "Update failed", err.Error())
	}

	return s.result(req.ID, map[string]interface{}{"phase": b.Phase().String()})
}

func (s *Server) handleViewDrop(req *Request) *Response {
	var p viewDropParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}
	// Dropping an unknown view is not an error; teardown is idempotent.
	if b, ok := s.coord.Lookup(p.ViewID); ok {
		s.coord.Teardown(b)
	}
	return s.result(req.ID, map[string]interface{}{})
}

// emitEvent forwards a lifecycle event as a view/event notification. It
// runs under the binding lock and only writes to the stream.
func (s *Server) emitEvent(e lifecycle.Event) {
	s.notify("view/event", viewEvent{
		ViewID:  e.ViewID,
		Event:   string(e.Name),
		Payload: e.Payload,
	})
}

// viewTarget pushes rendered images to the host as view/image
// notifications.
type viewTarget struct {
	s      *Server
	viewID string
}

func (t *viewTarget) SetImage(kind engine.ImageKind, img image.Image) {
	enc, err := imaging.EncodePNG(img)
	if err != nil {
		t.s.log.Warn().Err(err).Str("view_id", t.viewID).Str("kind", kind.String()).Msg("failed to encode image")
		return
	}
	t.s.notify("view/image", viewImage{ViewID: t.viewID, Kind: kind.String(), EncodedImage: enc})
}

// === Loader Handlers ===

type setOptionsParams struct {
	Options json.RawMessage `json:"options"`
}

type prefetchParams struct {
	Sources []string `json:"sources"`
	LoadTo  string   `json:"loadTo"`
}

func (s *Server) handleSetOptions(req *Request) *Response {
	var p setOptionsParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	fragment := request.Fragment{}
	if len(p.Options) > 0 {
		f, err := request.ParseFragment(p.Options)
		if err != nil {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid options", err.Error())
		}
		fragment = f
	}

	opts, err := request.ParseLoaderOptions(fragment)
	if err != nil {
		var ce *request.ConfigError
		if errors.As(err, &ce) {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid options", configErrorData{
				Kind:   ce.Kind.String(),
				Field:  ce.Field,
				Detail: ce.Error(),
			})
		}
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid options", err.Error())
	}

	s.engine.SetOptions(opts)
	return s.result(req.ID, map[string]interface{}{})
}

// handlePrefetch validates the request and loads the sources off the read
// loop; the response is written once every source has been tried.
func (s *Server) handlePrefetch(req *Request) *Response {
	var p prefetchParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}
	tier, err := engine.ParseTier(p.LoadTo)
	if err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	s.async(func() *Response {
		if err := s.engine.Prefetch(context.Background(), p.Sources, tier); err != nil {
			s.log.Warn().Err(err).Int("sources", len(p.Sources)).Msg("prefetch failed")
			return s.errorResponse(req.ID, codeEngineFailure, "Prefetch failed", err.Error())
		}
		return s.result(req.ID, map[string]interface{}{"loaded": len(p.Sources), "tier": tier.String()})
	})
	return nil
}

// === Cache Handlers ===

type createKeyParams struct {
	Value string `json:"value"`
}

func (s *Server) handleClear(req *Request, fn func() error) *Response {
	if err := fn(); err != nil {
		return s.errorResponse(req.ID, codeEngineFailure, "Cache clear failed", err.Error())
	}
	return s.result(req.ID, map[string]interface{}{})
}

// handleCreateKey returns the external form of a Simple key, ready to be
// passed back as a memoryCacheKey prop.
func (s *Server) handleCreateKey(req *Request) *Response {
	var p createKeyParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}
	ext, err := cachekey.ToExternal(cachekey.Simple(p.Value))
	if err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid key", err.Error())
	}
	return s.result(req.ID, ext)
}
