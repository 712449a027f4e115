package pipeline

// State is a job's position in its lifecycle
type State string

const (
	StateInit           State = "INIT"
	StateAuthenticating State = "AUTHENTICATING"
	StateFetching       State = "FETCHING"
	StateCheckpointing  State = "CHECKPOINTING"
	StateUploading      State = "UPLOADING"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

func (s State) activity() string {
	switch s {
	case StateInit:
		return "initializing"
	case StateAuthenticating:
		return "authenticating"
	case StateFetching:
		return "fetching"
	case StateCheckpointing:
		return "checkpointing"
	case StateUploading:
		return "uploading"
	default:
		return string(s)
	}
}
