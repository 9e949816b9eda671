// Package quake defines the types shared by the earthquake catalog pipeline:
// records, periods, fetch outcomes, the error taxonomy, and the interfaces
// implemented by the fetcher, stores, and publishers.
package quake
