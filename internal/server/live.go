package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/rand"

	"twotoone/internal/agent"
	"twotoone/internal/ops"
	"twotoone/internal/tournament"
)

// LiveReply is sent after every human move.
type LiveReply struct {
	TheyPicked *bool `json:"theyPicked,omitempty"`
	Score      int   `json:"score"`
	Done       bool  `json:"done,omitempty"`
}

// picker hands out a strategy and the random source its runtime draws from.
type picker func() (tournament.Strategy, *rand.Rand, error)

// LiveSession is one human playing a run of rounds against random ladder
// strategies. It is not safe for concurrent use.
type LiveSession struct {
	pick   picker
	rounds int

	player *agent.Player
	last   ops.Value
	score  int
	round  int
}

func newLiveSession(pick picker, rounds int) *LiveSession {
	return &LiveSession{pick: pick, rounds: rounds, last: ops.Absent()}
}

// Play records the human's move and answers with the strategy's move for the
// same round. The strategy sees the human's previous move. A differing pair
// earns the human 1 for false and 2 for true.
func (s *LiveSession) Play(human bool) (LiveReply, error) {
	if s.player == nil {
		strategy, rng, err := s.pick()
		if err != nil {
			return LiveReply{}, err
		}
		player, err := agent.NewPlayer(strategy.ID, strategy.Program, rng)
		if err != nil {
			return LiveReply{}, err
		}
		s.player = player
	}

	move, err := s.player.Step(s.last)
	if err != nil {
		move = ops.Absent()
	}
	move = tournament.Normalize(move)
	humanMove := ops.Bool(human)
	s.last = humanMove
	if !move.Equal(humanMove) {
		s.score += tournament.Points(humanMove)
	}
	s.round++

	reply := LiveReply{Score: s.score}
	if !move.IsAbsent() {
		picked := move.Truthy()
		reply.TheyPicked = &picked
	}
	if s.round >= s.rounds {
		reply.Done = true
		s.player = nil
		s.score = 0
		s.round = 0
	}
	return reply, nil
}

// parseHumanMove reads a client message as a number; anything non-zero is
// true, text that is not a number is false.
func parseHumanMove(msg []byte) bool {
	text := strings.TrimSpace(string(msg))
	if text == "" {
		return false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) {
		return false
	}
	return f != 0
}

func (s *Server) pickLive() (tournament.Strategy, *rand.Rand, error) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	strategy, err := s.ladder.RandomStrategy(s.rng)
	if err != nil {
		return tournament.Strategy{}, nil, err
	}
	return strategy, rand.New(rand.NewSource(s.rng.Uint64())), nil
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	session := newLiveSession(s.pickLive, s.liveRounds)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("live session ended")
			}
			return
		}
		reply, err := session.Play(parseHumanMove(msg))
		if err != nil {
			s.log.Debug().Err(err).Msg("live play unavailable")
			if writeErr := conn.WriteJSON(map[string]string{"error": err.Error()}); writeErr != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}
