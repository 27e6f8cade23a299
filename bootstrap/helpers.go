package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"appserver/config"
)

// ClassifyConnectionError provides specific error messages based on the type of database connection failure.
func ClassifyConnectionError(err error, addr string) string {
	if err == nil {
		return ""
	}

	var connErr *config.ConnectionError
	if errors.As(err, &connErr) {
		return fmt.Sprintf("Database %s is not configured correctly: %v\n"+
			"  Remediation:\n"+
			"  - Set MONGO_USER, MONGO_PASSWORD and MONGO_PATH\n"+
			"  - MONGO_PATH starts with '@', e.g. @cluster0.example.net/app?retryWrites=true\n"+
			"  - Check the result with: appserver uri", connErr.Field, connErr.Err)
	}

	errStr := err.Error()

	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || containsIgnoreCase(errStr, "server selection") {
		return fmt.Sprintf("Connection to MongoDB at %s timed out.\n"+
			"  Possible causes:\n"+
			"  - MongoDB is starting up (wait and retry)\n"+
			"  - Network latency or firewall blocking the connection\n"+
			"  - This host's IP is not on the cluster's access list\n"+
			"  Remediation:\n"+
			"  - Raise database.connect_timeout\n"+
			"  - Verify network connectivity to the cluster", addr)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			(opErr.Err != nil && containsIgnoreCase(opErr.Err.Error(), "connection refused")) {
			return fmt.Sprintf("Connection refused by MongoDB at %s.\n"+
				"  This usually means MongoDB is not running.\n"+
				"  Remediation:\n"+
				"  - Start MongoDB: docker run -d -p 27017:27017 mongo:7\n"+
				"  - Verify the host in MONGO_PATH", addr)
		}
	}

	if containsIgnoreCase(errStr, "no such host") || containsIgnoreCase(errStr, "lookup") {
		return fmt.Sprintf("Cannot resolve hostname in MongoDB address %s.\n"+
			"  Remediation:\n"+
			"  - Verify the hostname in MONGO_PATH\n"+
			"  - mongodb+srv requires DNS SRV records; use database.scheme=mongodb for plain hosts", addr)
	}

	if containsIgnoreCase(errStr, "authentication") || containsIgnoreCase(errStr, "auth error") {
		return fmt.Sprintf("Authentication failed for MongoDB at %s.\n"+
			"  Remediation:\n"+
			"  - Verify MONGO_USER and MONGO_PASSWORD\n"+
			"  - Add ?authSource=admin to MONGO_PATH if the user is defined there", addr)
	}

	return fmt.Sprintf("Failed to connect to MongoDB at %s: %v\n"+
		"  Remediation:\n"+
		"  - Ensure MongoDB is running and accessible\n"+
		"  - Check MONGO_PATH\n"+
		"  - Verify network connectivity", addr, err)
}

// ClassifyListenError explains why the HTTP port could not be bound.
func ClassifyListenError(err error, port int) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, syscall.EADDRINUSE) || containsIgnoreCase(err.Error(), "address already in use") {
		return fmt.Sprintf("Port %d is already in use.\n"+
			"  Remediation:\n"+
			"  - Stop the other process or choose another port: appserver serve --port <port>\n"+
			"  - Or set APP_SERVER_PORT / PORT", port)
	}
	if errors.Is(err, syscall.EACCES) || containsIgnoreCase(err.Error(), "permission denied") {
		return fmt.Sprintf("Permission denied binding port %d.\n"+
			"  Remediation:\n"+
			"  - Ports below 1024 need elevated privileges; use a higher port", port)
	}
	return fmt.Sprintf("Failed to listen on port %d: %v", port, err)
}

// containsIgnoreCase checks if a string contains a substring (case-insensitive).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
