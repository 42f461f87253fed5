/*
Package sandbox is the boundary between the engine and untrusted service
scripts.

It has two independent parts.

The visibility Policy decides, by qualified name, which host types may be
handed to scripts at all. Names are matched against a fixed prefix
allow-list; accepted names are memoized so repeated checks are a map hit.

The Boundary converts host values into script values. Conversion is a
closed type switch: primitives pass through, byte streams become read-only
InputStream proxies, documents become JSON text unless they are already a
Document proxy, slices become native arrays, and HostObject values become
plain script objects whose methods call back into Go. Anything else is
refused. The stream, document and request-body proxies cannot be built by
scripts; their constructors throw "not found".

A Boundary belongs to exactly one execution context and its runtime.
*/
package sandbox
