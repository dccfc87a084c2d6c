// Package dedupe remembers recently seen client request keys so that retried
// commands resolve to the result of the first attempt instead of running twice.
package dedupe
