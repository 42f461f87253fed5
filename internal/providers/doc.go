// Package providers groups what the engine hands to scripts:
//
//   - sandbox: the boundary between host values and script code
//   - extension: capability classes loaded from archives or built in
//   - bridge: the pjvm host object calling back into the unit
package providers
