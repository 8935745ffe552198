/*
Package cluster holds the wire types shared by the endpoint connection
(pkg/cluster/endpoint), the replay log (pkg/cluster/replay), and
the cluster router (pkg/cluster/router): the jsonrpc-shaped Message
envelope, its closed set of cluster:: methods, and the netstring framing
used both on the wire and in the on-disk replay log.
*/
package cluster
