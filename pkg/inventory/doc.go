/*
Package inventory holds the Interaction Inventory: the ordered, immutable table
of scripted conversational nodes, and the Trigger Resolver that maps free text
to the first matching node.

Inventories are built once at startup (from YAML via Load/Parse, from the
embedded default via Default, or programmatically via the Builder) and then
shared read-only across sessions.
*/
package inventory
