package git

// Kind identifies one operation type of the backend. Each kind owns its own job slot.
type Kind int

const (
	KindStatus Kind = iota
	KindDiff
	KindLog
	KindCommitInfo
	KindBlame
	KindTags
	KindBranches
	KindPullRequests
	KindStage
	KindCommit
	KindFetch
	KindPush
	KindPull
)

// AllKinds lists every kind in declaration order
var AllKinds = []Kind{
	KindStatus, KindDiff, KindLog, KindCommitInfo, KindBlame, KindTags, KindBranches,
	KindPullRequests, KindStage, KindCommit, KindFetch, KindPush, KindPull,
}

var kindNames = map[Kind]string{
	KindStatus:       "status",
	KindDiff:         "diff",
	KindLog:          "log",
	KindCommitInfo:   "commit-info",
	KindBlame:        "blame",
	KindTags:         "tags",
	KindBranches:     "branches",
	KindPullRequests: "pull-requests",
	KindStage:        "stage",
	KindCommit:       "commit",
	KindFetch:        "fetch",
	KindPush:         "push",
	KindPull:         "pull",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Mutating reports whether the kind writes to the repository or talks to a remote.
// Mutating kinds must never run concurrently with each other.
func (k Kind) Mutating() bool {
	switch k {
	case KindStage, KindCommit, KindFetch, KindPush, KindPull:
		return true
	}
	return false
}

// IsRemote reports whether the kind is a fetch, push or pull
func (k Kind) IsRemote() bool {
	return k == KindFetch || k == KindPush || k == KindPull
}

// ParseKind resolves a kind from its name
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// KindOf maps a query or write parameter value to the operation it requests.
// Remote kinds have no parameter type and are never reported.
func KindOf(params any) (Kind, bool) {
	switch params.(type) {
	case StatusParams:
		return KindStatus, true
	case DiffParams:
		return KindDiff, true
	case LogParams:
		return KindLog, true
	case CommitInfoParams:
		return KindCommitInfo, true
	case BlameParams:
		return KindBlame, true
	case TagParams:
		return KindTags, true
	case BranchParams:
		return KindBranches, true
	case PullRequestParams:
		return KindPullRequests, true
	case StageParams:
		return KindStage, true
	case CommitParams:
		return KindCommit, true
	}
	return 0, false
}
