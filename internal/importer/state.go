package importer

// State is the phase an import run is in.
type State int

const (
	StateIdle State = iota
	StateValidatingAccount
	StateResolvingMenu
	StateCreatingCategories
	StateCreatingSubcategories
	StateAssigningProducts
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateIdle:                  "idle",
	StateValidatingAccount:     "validating_account",
	StateResolvingMenu:         "resolving_menu",
	StateCreatingCategories:    "creating_categories",
	StateCreatingSubcategories: "creating_subcategories",
	StateAssigningProducts:     "assigning_products",
	StateCompleted:             "completed",
	StateFailed:                "failed",
	StateCancelled:             "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}
