// Package wasm loads transforms from WebAssembly modules with wazero.
//
// A YAML manifest names the module and maps its exported functions to
// transforms. Exports must be pure numeric functions over f64 values:
// plain numbers are passed as they are, quantities only to parameters
// annotated with their unit, and annotated results come back as
// quantities. Each call runs in a fresh module instance bounded by the
// host timeout and memory limit.
package wasm
