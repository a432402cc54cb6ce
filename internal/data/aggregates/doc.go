// Package aggregates holds the transaction boundary and compare-and-set
// helpers shared by the repos and the pipeline coordinators.
package aggregates
