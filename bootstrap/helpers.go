package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"elisedb/config"
)

// ClassifyConnectionError provides specific error messages based on the type of connection failure.
func ClassifyConnectionError(err error, uri string) string {
	if err == nil {
		return ""
	}

	addr := config.MaskURI(uri)
	errStr := strings.ToLower(err.Error())

	var opErr *net.OpError
	refused := errors.Is(err, syscall.ECONNREFUSED) ||
		(errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Err != nil &&
			strings.Contains(strings.ToLower(opErr.Err.Error()), "refused"))
	if refused || strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused") {
		return fmt.Sprintf("Connection refused by MongoDB at %s.\n"+
			"  This usually means MongoDB is not running.\n"+
			"  Remediation:\n"+
			"  - Start MongoDB: docker compose up -d mongo\n"+
			"  - Check MongoDB logs: docker logs <mongo-container>\n"+
			"  - Verify mongodb.uri in the config file or ELISEDB_MONGODB_URI", addr)
	}

	if strings.Contains(errStr, "no such host") || strings.Contains(errStr, "lookup") {
		return fmt.Sprintf("Cannot resolve hostname in MongoDB URI %s.\n"+
			"  Remediation:\n"+
			"  - Verify the hostname is correct\n"+
			"  - Check DNS configuration\n"+
			"  - Try using IP address (127.0.0.1) instead of hostname", addr)
	}

	if strings.Contains(errStr, "authentication") || strings.Contains(errStr, "auth error") || strings.Contains(errStr, "unauthorized") {
		return fmt.Sprintf("Authentication failed for MongoDB at %s.\n"+
			"  Remediation:\n"+
			"  - Verify the administrative credentials embedded in mongodb.uri\n"+
			"  - Check the authSource parameter of the URI\n"+
			"  - The account must be allowed to run createUser and createIndexes", addr)
	}

	var netErr net.Error
	timedOut := errors.As(err, &netErr) && netErr.Timeout()
	if timedOut || strings.Contains(errStr, "server selection") || strings.Contains(errStr, "deadline exceeded") {
		return fmt.Sprintf("Connection to MongoDB at %s timed out.\n"+
			"  Possible causes:\n"+
			"  - MongoDB is starting up (wait and retry, see mongodb.connect_retries)\n"+
			"  - Network latency or firewall blocking the connection\n"+
			"  - A replica set member name that does not resolve from this host (try directConnection=true)\n"+
			"  Remediation:\n"+
			"  - Check if MongoDB is running: docker ps | grep mongo\n"+
			"  - Raise mongodb.connect_timeout", addr)
	}

	return fmt.Sprintf("Failed to connect to MongoDB at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure MongoDB is running and accessible\n"+
		"  - Check the mongodb.uri setting\n"+
		"  - Verify network connectivity", addr, err)
}
