// Command arps records Art-Net DMX streams to files and plays them back with
// the original timing.
//
//	arps record -u 0,1,2 -d 30 -o shows/
//	arps play -a 10.0.0.5 -i shows/ -l
//	arps info shows/*.artrec
package main
