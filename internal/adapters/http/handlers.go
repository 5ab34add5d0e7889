package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dkeye/Conference/internal/adapters/loopback"
	"github.com/dkeye/Conference/internal/adapters/rtc"
	"github.com/dkeye/Conference/internal/adapters/signal"
	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/app/session"
	"github.com/dkeye/Conference/internal/config"
	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const answerTimeout = 10 * time.Second

var (
	ErrNoVideo     = errors.New("peer has no relayed video")
	ErrUnknownPeer = errors.New("unknown peer")
)

type Handlers struct {
	Hub        *loopback.Hub
	Sessions   *session.Registry
	Cfg        *config.Config
	ServerCtx  context.Context
	ICEServers []string
}

type connectRequest struct {
	Room     string `json:"room" binding:"required"`
	Kind     string `json:"kind"`
	UserName string `json:"userName"`
	Muted    bool   `json:"muted"`
	Speaker  string `json:"speaker"`
	Outgoing bool   `json:"outgoing"`
}

func (r connectRequest) settings(cfg *config.Config) (domain.RoomKind, domain.CallSettings, error) {
	kind := cfg.DefaultRoomKind()
	if r.Kind != "" {
		k, err := domain.ParseRoomKind(r.Kind)
		if err != nil {
			return 0, domain.CallSettings{}, err
		}
		kind = k
	}
	speaker := domain.SpeakerReceiver
	if r.Speaker != "" {
		s, err := domain.ParseOutputSpeaker(r.Speaker)
		if err != nil {
			return 0, domain.CallSettings{}, err
		}
		speaker = s
	}
	name := r.UserName
	if name == "" {
		name = cfg.UserName
	}
	return kind, domain.CallSettings{
		UserName: name,
		Muted:    r.Muted,
		Speaker:  speaker,
		Outgoing: r.Outgoing,
	}, nil
}

func (h *Handlers) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, settings, err := req.settings(h.Cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sid := sessionID(c)
	name := domain.RoomName(req.Room)
	coord := h.Sessions.GetOrCreate(sid)
	if err := coord.Connect(c.Request.Context(), kind, name, settings); err != nil {
		writeError(c, err)
		return
	}
	h.Sessions.UpdateRoom(sid, kind, name)

	sess := sessions.Default(c)
	sess.Set("room", req.Room)
	sess.Set("kind", kind.String())
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("sid", string(sid)).Msg("save session")
	}

	c.JSON(http.StatusOK, gin.H{
		"connected": true,
		"streams":   signal.NewStreamViews(coord.Streams()),
	})
}

func (h *Handlers) Disconnect(c *gin.Context) {
	sid := sessionID(c)
	coord, ok := h.Sessions.Get(sid)
	if !ok {
		writeError(c, app.ErrNowDisconnecting)
		return
	}
	if err := coord.Disconnect(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.Sessions.RemoveRoom(sid)
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

func (h *Handlers) SwitchMute(c *gin.Context) {
	coord := h.Sessions.GetOrCreate(sessionID(c))
	s, changed, err := coord.SwitchMute(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"changed": changed, "muted": coord.IsMuted()}
	if changed {
		resp["stream"] = signal.NewStreamView(s)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) SwitchSpeaker(c *gin.Context) {
	var req struct {
		Speaker string `json:"speaker"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var target *domain.OutputSpeaker
	if req.Speaker != "" {
		s, err := domain.ParseOutputSpeaker(req.Speaker)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		target = &s
	}
	coord := h.Sessions.GetOrCreate(sessionID(c))
	speaker, changed := coord.SwitchOutputAudio(target)
	c.JSON(http.StatusOK, gin.H{"changed": changed, "speaker": speaker.String()})
}

func (h *Handlers) SwitchVideo(c *gin.Context) {
	coord := h.Sessions.GetOrCreate(sessionID(c))
	s, changed, err := coord.SwitchShareVideo(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"changed": changed, "has_video": coord.HasShareVideo()}
	if changed {
		resp["stream"] = signal.NewStreamView(s)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) SwitchCamera(c *gin.Context) {
	coord := h.Sessions.GetOrCreate(sessionID(c))
	if err := coord.SwitchCamera(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) Streams(c *gin.Context) {
	coord := h.Sessions.GetOrCreate(sessionID(c))
	resp := gin.H{
		"connected": coord.IsConnected(),
		"muted":     coord.IsMuted(),
		"speaker":   coord.OutputSpeaker().String(),
		"has_video": coord.HasShareVideo(),
		"streams":   signal.NewStreamViews(coord.Streams()),
	}
	if room, ok := sessions.Default(c).Get("room").(string); ok {
		resp["last_room"] = room
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Hub.List()})
}

func (h *Handlers) CloseRoom(c *gin.Context) {
	if !h.Hub.CloseRoom(domain.RoomName(c.Param("name"))) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type trackHandle interface {
	Track() *webrtc.TrackLocalStaticRTP
}

// Watch answers a browser offer with a peer connection carrying the
// relayed video of one peer.
func (h *Handlers) Watch(c *gin.Context) {
	var offer webrtc.SessionDescription
	if err := c.ShouldBindJSON(&offer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sid := sessionID(c)
	coord, ok := h.Sessions.Get(sid)
	if !ok {
		writeError(c, ErrUnknownPeer)
		return
	}
	track, err := videoTrack(coord.Streams(), domain.PeerID(c.Param("peer")))
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := rtc.NewViewerConnection(rtc.DefaultWebRTCConfig(h.ICEServers), string(sid))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := conn.AddTrack(track); err != nil {
		conn.Close()
		writeError(c, err)
		return
	}
	conn.Start(h.ServerCtx)

	ctx, cancel := context.WithTimeout(c.Request.Context(), answerTimeout)
	defer cancel()
	answer, err := conn.Answer(ctx, offer)
	if err != nil {
		conn.Close()
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func videoTrack(streams []domain.Stream, peer domain.PeerID) (*webrtc.TrackLocalStaticRTP, error) {
	for _, s := range streams {
		if s.PeerID != peer {
			continue
		}
		th, ok := s.Video.(trackHandle)
		if !ok || th.Track() == nil {
			return nil, ErrNoVideo
		}
		return th.Track(), nil
	}
	return nil, ErrUnknownPeer
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var te *core.TransportError
	switch {
	case errors.Is(err, app.ErrAlreadyConnected), errors.Is(err, app.ErrNowDisconnecting):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUsernameEmpty), errors.Is(err, domain.ErrUsernameTooLong):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrNotFoundOtherCamera), errors.Is(err, app.ErrNoSupportedCameras),
		errors.Is(err, ErrNoVideo):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnknownPeer):
		status = http.StatusNotFound
	case errors.As(err, &te):
		status = http.StatusBadGateway
		c.JSON(status, gin.H{"error": err.Error(), "code": te.Code.String()})
		return
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
