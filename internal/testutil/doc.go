// Package testutil contains helper builders and scripted collaborators used
// across tests to reduce boilerplate when constructing projects and agent
// behaviours. They are not intended for production usage.
package testutil
