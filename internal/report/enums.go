package report

// Choice is one selectable value of a report option.
type Choice struct {
	Value   string
	Display string
}

// Categories lists the report categories in presentation order.
var Categories = []Choice{
	{Value: "discord", Display: "Discord"},
	{Value: "render-farm", Display: "Farm"},
	{Value: "houdini", Display: "Houdini"},
	{Value: "maya", Display: "Maya"},
	{Value: "nuke", Display: "Nuke"},
	{Value: "misc", Display: "Other"},
	{Value: "shotgrid", Display: "ShotGrid"},
	{Value: "substance", Display: "Substance"},
	{Value: "unreal", Display: "Unreal"},
}

// Severities lists the report severities in presentation order.
var Severities = []Choice{
	{Value: "bug", Display: "Bug"},
	{Value: "critical", Display: "Critical Bug"},
	{Value: "feature", Display: "Feature Request"},
}

// DefaultLabels maps option values whose tracker label differs from the value.
var DefaultLabels = map[string]string{
	"render-farm": "renderfarm",
}

func hasValue(choices []Choice, value string) bool {
	for _, c := range choices {
		if c.Value == value {
			return true
		}
	}
	return false
}
