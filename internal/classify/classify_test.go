package classify

import "testing"

func TestRow(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  Category
	}{
		{name: "lecture title", cells: []string{"Lecture on X", "28-Apr"}, want: Event},
		{name: "meeting title mixed case", cells: []string{"MEETING with advisor", "28-Apr"}, want: Event},
		{name: "quiz embedded in title", cells: []string{"Prep quiz 3", "28-Apr"}, want: Event},
		{name: "submission in remarks", cells: []string{"Essay draft", "28-Apr", "", "", "final submission"}, want: Event},
		{name: "plain task", cells: []string{"Buy groceries", "28-Apr"}, want: Task},
		{name: "task with unrelated remarks", cells: []string{"Clean desk", "28-Apr", "", "", "before friday"}, want: Task},
		{name: "header row by name", cells: []string{"Name", "Date"}, want: Skip},
		{name: "header row by title", cells: []string{"Title", "Date"}, want: Skip},
		{name: "empty title", cells: []string{"", "28-Apr"}, want: Skip},
		{name: "whitespace title", cells: []string{"   ", "28-Apr"}, want: Skip},
		{name: "single cell", cells: []string{"Lecture on X"}, want: Skip},
		{name: "no cells", cells: nil, want: Skip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Row(tt.cells); got != tt.want {
				t.Errorf("Row(%v) = %v, want %v", tt.cells, got, tt.want)
			}
		})
	}
}
