// Package clientcmd provides the demo publisher/subscriber commands for
// the `rocketspeed` CLI.
//
// Unlike the teacher's client, which talks HTTP/gRPC, these commands dial
// a broker directly over RocketSpeed's own wire protocol using
// internal/client.Client — there is no separate HTTP control plane to
// call.
//
// Usage
//
//	rocketspeed publish --broker 127.0.0.1:8080 --namespace default --topic demo --payload hello
//	rocketspeed subscribe --broker 127.0.0.1:8080 --namespace default --topic demo
package clientcmd
