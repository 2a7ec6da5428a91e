package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sequencer64/internal/midi"
)

func slotParam(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slot must be an integer"})
		return 0, false
	}
	return slot, true
}

func groupParam(c *gin.Context) (int, bool) {
	group, err := strconv.Atoi(c.Param("group"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group must be an integer"})
		return 0, false
	}
	return group, true
}

// statusResponse mirrors Transport's public fields as a stable JSON shape,
// independent of internal field naming.
type statusResponse struct {
	PPQN        int     `json:"ppqn"`
	BPM         float64 `json:"bpm"`
	Running     bool    `json:"running"`
	SongMode    bool    `json:"songMode"`
	CurrentTick int64   `json:"currentTick"`
	LeftMarker  int64   `json:"leftMarker"`
	RightMarker int64   `json:"rightMarker"`
	ScreenSet   int     `json:"screenSet"`
}

func (s *Server) getStatus(c *gin.Context) {
	tr := s.engine.Transport()
	c.JSON(http.StatusOK, statusResponse{
		PPQN:        tr.PPQN,
		BPM:         tr.BPM,
		Running:     tr.Running,
		SongMode:    tr.SongMode,
		CurrentTick: tr.CurrentTick,
		LeftMarker:  tr.LeftMarker,
		RightMarker: tr.RightMarker,
		ScreenSet:   s.engine.CurrentScreenSet(),
	})
}

func (s *Server) postPlay(c *gin.Context) {
	s.engine.Play()
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) postStop(c *gin.Context) {
	s.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

// bpmRequest is the JSON body for POST /api/transport/bpm.
type bpmRequest struct {
	BPM float64 `json:"bpm" binding:"required"`
}

func (s *Server) postBPM(c *gin.Context) {
	var req bpmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.engine.SetBPM(req.BPM)
	c.JSON(http.StatusOK, gin.H{"bpm": s.engine.BPM()})
}

// loopRequest is the JSON body for POST /api/transport/loop.
type loopRequest struct {
	Left  int64 `json:"left" binding:"required"`
	Right int64 `json:"right" binding:"required"`
}

func (s *Server) postLoopMarkers(c *gin.Context) {
	var req loopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.engine.SetLoopMarkers(req.Left, req.Right)
	c.JSON(http.StatusOK, gin.H{"left": req.Left, "right": req.Right})
}

// patternResponse describes one pattern slot for GET /api/patterns[/:slot].
type patternResponse struct {
	Slot      int   `json:"slot"`
	Length    int64 `json:"length"`
	Bus       int   `json:"bus"`
	Channel   byte  `json:"channel"`
	Playing   bool  `json:"playing"`
	Recording bool  `json:"recording"`
	Events    int   `json:"events"`
	Triggers  int   `json:"triggers"`
}

func patternToResponse(slot int, p *midi.Pattern) patternResponse {
	return patternResponse{
		Slot:      slot,
		Length:    p.Length,
		Bus:       p.Bus,
		Channel:   p.Channel,
		Playing:   p.Playing(),
		Recording: p.Recording(),
		Events:    p.Events.Len(),
		Triggers:  len(p.Triggers.List),
	}
}

func (s *Server) listPatterns(c *gin.Context) {
	var out []patternResponse
	for _, slot := range s.engine.ActiveSlots() {
		if p, ok := s.engine.Pattern(slot); ok {
			out = append(out, patternToResponse(slot, p))
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getPattern(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}
	p, found := s.engine.Pattern(slot)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pattern in that slot"})
		return
	}
	c.JSON(http.StatusOK, patternToResponse(slot, p))
}

// createPatternRequest is the JSON body for POST /api/patterns/:slot.
type createPatternRequest struct {
	Length      int64 `json:"length" binding:"required"`
	BeatsPerBar int   `json:"beatsPerBar"`
	BeatWidth   int   `json:"beatWidth"`
	PPQN        int   `json:"ppqn"`
}

func (s *Server) createPattern(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}
	var req createPatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	beatsPerBar, beatWidth, ppqn := req.BeatsPerBar, req.BeatWidth, req.PPQN
	if beatsPerBar <= 0 {
		beatsPerBar = 4
	}
	if beatWidth <= 0 {
		beatWidth = 4
	}
	if ppqn <= 0 {
		ppqn = s.engine.Transport().PPQN
	}
	p := midi.NewPattern(req.Length, beatsPerBar, beatWidth, ppqn)
	if err := s.engine.SetPattern(slot, p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, patternToResponse(slot, p))
}

func (s *Server) deletePattern(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}
	s.engine.RemovePattern(slot)
	c.JSON(http.StatusOK, gin.H{"deleted": slot})
}

// playingRequest is the JSON body for POST /api/patterns/:slot/playing.
type playingRequest struct {
	Playing bool `json:"playing"`
}

func (s *Server) setPatternPlaying(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}
	p, found := s.engine.Pattern(slot)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pattern in that slot"})
		return
	}
	var req playingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.SetPlaying(req.Playing)
	c.JSON(http.StatusOK, gin.H{"slot": slot, "playing": req.Playing})
}

// noteRequest is the JSON body for POST /api/patterns/:slot/notes.
type noteRequest struct {
	Tick     int64 `json:"tick"`
	Length   int64 `json:"length" binding:"required"`
	Pitch    byte  `json:"pitch" binding:"required"`
	Velocity byte  `json:"velocity"`
}

func (s *Server) addNote(c *gin.Context) {
	slot, ok := slotParam(c)
	if !ok {
		return
	}
	p, found := s.engine.Pattern(slot)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pattern in that slot"})
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vel := req.Velocity
	if vel == 0 {
		vel = 100
	}
	p.AddNote(req.Tick, req.Length, req.Pitch, vel, true)
	c.JSON(http.StatusCreated, gin.H{"slot": slot, "events": p.Events.Len()})
}

// screenSetRequest is the JSON body for POST /api/screenset.
type screenSetRequest struct {
	Index int `json:"index"`
}

func (s *Server) setScreenSet(c *gin.Context) {
	var req screenSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.engine.SetScreenSet(req.Index)
	c.JSON(http.StatusOK, gin.H{"screenSet": s.engine.CurrentScreenSet()})
}

func (s *Server) getScreenSet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"screenSet": s.engine.CurrentScreenSet()})
}

func (s *Server) learnMuteGroup(c *gin.Context) {
	group, ok := groupParam(c)
	if !ok {
		return
	}
	s.engine.LearnGroup(group)
	c.JSON(http.StatusOK, gin.H{"group": group, "learned": true})
}

func (s *Server) applyMuteGroup(c *gin.Context) {
	group, ok := groupParam(c)
	if !ok {
		return
	}
	s.engine.ApplyGroup(group)
	c.JSON(http.StatusOK, gin.H{"group": group, "applied": true})
}
