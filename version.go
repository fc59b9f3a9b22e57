package pqc

// Version is the release version of the module.
var Version = "0.1.0"
