// Command gcctl drives a swiper heap with a synthetic workload and reports
// what the collector did.
package main

func main() {
	execute()
}
