// Package shutdown cancels in-flight element work on SIGINT or SIGTERM and
// runs cleanup hooks, such as closing the element session and flushing
// metrics, exactly once.
package shutdown
