package model

// Option is a selectable onboarding choice.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// ExperienceLevels offered during onboarding.
var ExperienceLevels = []Option{
	{ID: "beginner", Label: "Beginner", Description: "New to dating"},
	{ID: "intermediate", Label: "Intermediate", Description: "Some experience"},
	{ID: "advanced", Label: "Advanced", Description: "Very confident"},
}

// DatingGoals offered during onboarding.
var DatingGoals = []Option{
	{ID: "casual", Label: "Casual Dating"},
	{ID: "serious", Label: "Serious Relationships"},
	{ID: "confidence", Label: "Building Confidence"},
	{ID: "social", Label: "Social Skills"},
}

// IsExperienceLevel reports whether id is a known experience level.
func IsExperienceLevel(id string) bool { return hasOption(ExperienceLevels, id) }

// IsDatingGoal reports whether id is a known dating goal.
func IsDatingGoal(id string) bool { return hasOption(DatingGoals, id) }

func hasOption(opts []Option, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}
