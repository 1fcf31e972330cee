/*
Package access decides whether an API key may read or write a database.

API keys live in the reserved configuration database under the key "api-keys":

	{
	  "5up3r53cr3tK3y": {"dbs": [{"dbName": "testDB", "access": "WRITE"}]},
	  "T3st53cr3tK3y":  {"dbs": [{"dbName": ":memory:.test*", "access": "READ"}]}
	}

A grant pattern is a database name, "*", or a prefix ending in "*". WRITE implies
READ. The table is read on every check, so edits take effect without a restart.
On first use a Checker writes its seed keys (DefaultSeeds plus an optional YAML
keys file, see LoadKeysFile) for every key the table does not contain yet.
*/
package access
