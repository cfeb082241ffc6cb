/*
Package auth gates /download behind expiring bearer tokens.

Accounts come from a YAML file listing usernames and bcrypt hashes:

	users:
	  - username: alice
	    password_hash: $2a$10$...

A successful login issues a random 32-byte token (base64url) that is valid
until the configured TTL passes or the user logs out. Sessions live in memory
and do not survive a restart.
*/
package auth
