package settings

// Field describes one row of the settings panel.
type Field struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Placeholder string `json:"placeholder"`
}

var fields = []Field{
	{Key: KeyAPIKey, Name: "API Key", Description: "Tomorrow.io API Key", Placeholder: "Enter your api key"},
	{Key: KeyUnits, Name: "Units", Description: "Metric or imperial", Placeholder: "Enter units"},
	{Key: KeyTimezone, Name: "Timezone", Description: "Location timezone", Placeholder: "Enter timezone"},
	{Key: KeyLatitude, Name: "Latitude", Description: "Latitude coordinate", Placeholder: "Enter location latitude"},
	{Key: KeyLongitude, Name: "Longitude", Description: "Longitude coordinate", Placeholder: "Enter location longitude"},
}

// Fields returns the panel rows in display order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}
