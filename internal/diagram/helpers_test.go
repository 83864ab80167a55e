package diagram

import (
	"github.com/rendis/bpmnforms/internal/graph"
	"github.com/rendis/bpmnforms/internal/graph/graphtest"
)

func decisionGraph() *graph.Graph {
	g := graphtest.New().
		Start("S").Task("T1", "Review").XOR("G", "Decision").
		Task("T2", "Approve").Call("T3", "Reject").End("E").
		Chain("S", "T1", "G").Fan("G", "T2", "T3").
		Chain("T2", "E").Chain("T3", "E").
		Build()
	must(g.SetCondition(graphtest.EdgeTo(g, "G", "T2").ID, g.NewCondition(`nextTask = "T2"`)))
	must(g.SetDefault("G", graphtest.EdgeTo(g, "G", "T3").ID))
	must(g.SetFormBinding("T1", graph.FormBinding{FormID: "001-review-20260101T000000Z"}))
	return g
}

func parallelGraph() *graph.Graph {
	return graphtest.New().
		Start("S").AND("P").Task("a", "A").Task("b", "B").AND("J").End("E").
		Chain("S", "P").Fan("P", "a", "b").
		Chain("a", "J").Chain("b", "J").Chain("J", "E").
		Build()
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
