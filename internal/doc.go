// Package internal contains the implementation packages of tessera.
//
// # Package Organization
//
// Templates flow through the packages in this order:
//
//   - markup: lenient tag/attribute/text scanner with position tracking
//   - document: builds a template Document from markup events and splits
//     text into literal and {{ }} expression segments
//   - expression: the four expression forms and their matcher
//   - compiler: turns a Document into a flat instruction Program
//   - renderer: interprets Programs against scopes, slots and loops
//   - registry: copy-on-write snapshots of registered templates and
//     their compiled Programs
//   - engine: the embedding API tying the above together
//
// Supporting packages:
//
//   - scope, functions: render-time data and the function catalog
//   - scanner, watcher: directory loading and hot reload
//   - server: live preview over HTTP and websockets
//   - config, logging, errors, version: ambient infrastructure
//
// # Inter-Package Communication
//
//   - Registry publishes template events; the server turns them into
//     browser reloads
//   - Scanner registers files into the engine and remembers which file
//     provided which template
//   - Watcher batches filesystem changes and hands them to the scanner
//   - Renders read one registry snapshot from start to finish, so a
//     concurrent registration never produces a half-updated page
package internal
