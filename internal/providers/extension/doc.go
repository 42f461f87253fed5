// Package extension loads script-exposable extensions.
//
// Extensions ship in archives (zip, tar.gz, tgz, tar.zst) under the
// configured directory. Each archive entry <package path>/<Name>.js is a
// candidate; a Filter decides per package and simple name whether it is
// revealed, by default only names starting with "Ext_". An optional
// <Name>.properties entry next to it is handed to the extension.
//
// Archives are read and compiled once by Load. Define then runs every
// extension inside a request's runtime and publishes it under
// _p.extension.<Name>. Failures are logged and skipped one extension at a
// time.
package extension
