package state

// defaultTemplates are the starter prompts seeded into an empty store.
var defaultTemplates = []Template{
	{
		Name:        "Calculate expression",
		Description: "Calculate math or date expression",
		Content:     "Calculate expression '[expression]'",
		Variables: []Variable{
			{Name: "expression", Label: "Expression", Description: "Math or date expression to calculate."},
		},
	},
	{
		Name:        "Bar Chart example",
		Description: "Examples of charts and visualizations",
		Content:     `Show bar chart for next data: ["Mon", 10], ["Tue", 20], ["Wed", 30] where value is "Requests"`,
	},
	{
		Name:        "Line Chart example",
		Description: "Examples of charts and visualizations",
		Content:     `Show line chart for next series of data: One: ["7/10", 10], ["7/11", 20], ["7/12", 5] and Two: ["7/10", 40], ["7/11", 50], ["7/12", 90]`,
	},
	{
		Name:        "Random Bar Chart",
		Description: "Examples of charts and visualizations",
		Content:     "Get [count] random numbers from 10 to 100 not using any tools. Use those numbers to show a bar chart. Labels are: A, B, C, etc.",
		Variables: []Variable{
			{Name: "count", Label: "Count", Description: "Number of random values to generate.", Value: "10"},
		},
	},
	{
		Name:        "3d Visualization",
		Description: "Examples of 3D visualizations",
		Content:     "Create 3d scene: Flying through star field, stars coming from center. In the middle there is cube rotating, with basic lighting.",
	},
}
