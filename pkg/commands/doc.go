/*
Package commands is the local command surface that originates
comment, downtime, acknowledgement, and enable-flag changes for
whichever in-process caller decides to make them — an admin CLI, an
HTTP handler, anything holding a *registry.Registry and an *events.Bus.

Every function here mutates the registry under the target Service's lock
and publishes the corresponding event with Authority left empty, which
is what marks a change as locally-originated to the cluster router: it
gets appended to the replay log and relayed to every connected peer,
exactly like a change applied from an inbound message, just never relayed
back to an "origin" peer because there isn't one.
*/
package commands
