package rank

// Status discriminates the four fetch outcomes.
type Status int

const (
	StatusSuccess Status = iota + 1
	StatusUnranked
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnranked:
		return "unranked"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Standing is the solo-queue position of a ranked player.
type Standing struct {
	Tier         string
	Division     string
	LeaguePoints int
	Wins         int
	Losses       int
	Score        int
}

// Games is the number of games played in the queue.
func (s Standing) Games() int { return s.Wins + s.Losses }

// WinRate returns the win percentage. ok is false when no games were played.
func (s Standing) WinRate() (pct float64, ok bool) {
	n := s.Games()
	if n <= 0 {
		return 0, false
	}
	return float64(s.Wins) / float64(n) * 100, true
}

// Result is the outcome of one fetch. Standing is set only for
// StatusSuccess and Message only for StatusError.
type Result struct {
	Identity
	Status   Status
	Standing Standing
	Message  string
}

func Success(id Identity, st Standing) Result {
	return Result{Identity: id, Status: StatusSuccess, Standing: st}
}

func Unranked(id Identity) Result { return Result{Identity: id, Status: StatusUnranked} }

func NotFound(id Identity) Result { return Result{Identity: id, Status: StatusNotFound} }

func Failed(id Identity, msg string) Result {
	return Result{Identity: id, Status: StatusError, Message: msg}
}
