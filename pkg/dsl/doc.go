/*
Package dsl provides a fluent Go API for building parley flows.

It is an alternative to JSON and YAML flow documents when flows are generated
at runtime or defined next to the code that tests them.

Example usage:

	b := dsl.New("onboarding")

	b.Add("AskName").
		Say("What is your name?").
		Save("name").
		Go("AskCrop", domain.EventAny)

	b.Add("AskCrop").
		Menu("Which crop?", dsl.Item("Wheat", "wheat"), dsl.Item("Rice", "rice")).
		Save("crop").
		Finish(domain.EventAny)

	flow, err := b.Build()
	// ... pass flow to memory.NewFlowRepository(flow)
*/
package dsl
