// Package msl writes Metal Shading Language source from an IR module.
//
// MSL is C++14 with address space qualifiers and attribute-bound
// parameters. Metal has no module-scope resources, so every resource an
// entry point uses becomes a parameter of the kernel, vertex or fragment
// function, and every helper function that reaches a resource takes it as a
// trailing parameter.
//
// # Usage
//
//	src, info, err := msl.Compile(module, msl.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	// info.ResourceSlots maps each resource to its [[buffer(N)]],
//	// [[texture(N)]] or [[sampler(N)]] slot.
//
// Modules must be sanitized for Metal before compiling. Metal cannot ask a
// buffer for its size, so arrayLength has to be lowered to a uniform table
// of sizes the host fills in.
//
// # Entry Points
//
// The IR entry function is written as an ordinary function and called from
// a generated stage function. Location inputs are gathered into a
// [[stage_in]] struct, built-in inputs become attributed parameters, and the
// result is returned through an output struct.
//
// # Argument Slots
//
// Options.BindingMap gives each resource binding its slot in the buffer,
// texture or sampler table. With FakeMissingBindings, unmapped resources
// take consecutive slots after the highest mapped slot of their table.
//
// # Layout
//
// Fixed-size arrays are wrapped in a struct with an inner member so they
// can be passed and returned by value. Struct members keep their IR
// offsets: gaps are filled with char arrays, and a vec3 whose 16-byte Metal
// footprint would overlap the next member is declared packed.
package msl
