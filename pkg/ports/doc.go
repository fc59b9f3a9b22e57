// Package ports declares the interfaces at the system boundary: instrument
// capabilities, the table protocol driver, sequence loaders and result
// sinks. The executor and measurements depend only on these interfaces,
// never on a concrete SCPI driver or serialization format.
package ports
