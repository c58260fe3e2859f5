package domain

// Category codes used by this deployment. The category field is an open
// integer, not a closed enum: unknown codes are stored as-is and only fall
// back to an "unknown" label when rendered.
const (
	// CategoryUnclassified is the default for every new user.
	CategoryUnclassified = 0
	// CategoryNewcomer marks recently classified members.
	CategoryNewcomer = 1
	// CategoryIntermediate marks established members.
	CategoryIntermediate = 2
	// CategoryHigh marks the most engaged members.
	CategoryHigh = 3
)

// KnownCategories enumerates the deployed category codes in reporting order.
var KnownCategories = []int{
	CategoryUnclassified,
	CategoryNewcomer,
	CategoryIntermediate,
	CategoryHigh,
}

var categoryLabels = map[int]string{
	CategoryUnclassified: "unclassified",
	CategoryNewcomer:     "newcomer",
	CategoryIntermediate: "intermediate",
	CategoryHigh:         "high",
}

// CategoryLabel returns the human label for a category code, or "unknown"
// for codes outside the deployed set.
func CategoryLabel(code int) string {
	if label, ok := categoryLabels[code]; ok {
		return label
	}

	return "unknown"
}
