// Package database provides PostgreSQL connection pool management.
//
// The streamer reads watchlists (favorite instruments) from Postgres at
// session bootstrap; quote traffic itself never touches the database.
package database
