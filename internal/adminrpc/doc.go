// Package adminrpc exposes the broker's operational surface (D2): health,
// log enumeration, tail-seqno lookup, and delivery-cache control, over a
// plain gRPC service. There is no .proto toolchain in this build, so the
// service is registered directly against grpc.Server via a hand-built
// grpc.ServiceDesc instead of codegen'd stubs, the way the teacher's own
// grpcserver package wires flov1's generated services into grpc.NewServer
// — same ListenAndServe/GracefulStop shape, minus the codegen layer.
// Request and response bodies are google.golang.org/protobuf's
// structpb.Struct, the standard untyped protobuf payload for exactly this
// situation.
package adminrpc
