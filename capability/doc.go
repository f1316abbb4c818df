// Package capability detects what the host can run.
//
// Detection mirrors how browsers are probed for WebAssembly features: a
// tiny module using the feature is compiled and the feature counts as
// present only if compilation succeeds. Each module is compiled by a fresh
// wazero runtime, combined with a CPU feature check from cpuid so that
// vector builds are only chosen where the host actually has vector units.
//
// Probing never fails. Any error or panic during a probe reports the
// feature as absent.
package capability
