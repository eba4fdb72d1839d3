// Package flow is the signal propagation core shared by all widgets.
//
// A Graph holds nodes, each wrapping a Processor with named typed input and
// output ports, and links binding one node's output to another node's input.
// Committing a node recomputes its outputs and delivers them along its links;
// downstream nodes in auto-commit mode are recomputed in the same wave, in
// topological order, so a node sees every input written during the wave
// before it runs. Links that would close a cycle are rejected at bind time.
package flow
